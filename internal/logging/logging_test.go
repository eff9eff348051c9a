package logging

import "testing"

func TestNew(t *testing.T) {
	cases := []struct {
		level, format string
		wantErr       bool
	}{
		{"debug", "console", false},
		{"INFO", "json", false},
		{"warn", "", false},
		{"loud", "console", true},
		{"info", "xml", true},
	}
	for _, tc := range cases {
		l, err := New(tc.level, tc.format)
		if tc.wantErr {
			if err == nil {
				t.Errorf("New(%q,%q) expected error", tc.level, tc.format)
			}
			continue
		}
		if err != nil {
			t.Fatalf("New(%q,%q): %v", tc.level, tc.format, err)
		}
		_ = l.Sync()
	}
}

func TestLevel(t *testing.T) {
	if Level(true, true) != "debug" {
		t.Fatalf("debug wins over quiet")
	}
	if Level(false, true) != "error" || Level(false, false) != "warn" {
		t.Fatalf("unexpected level mapping")
	}
}
