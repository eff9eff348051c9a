package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "listings.csv")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func TestLoadCSV_InfersKinds(t *testing.T) {
	p := writeCSV(t, strings.Join([]string{
		"title,battery,Tow_Hitch,Number_of_seats",
		"Tesla Model 3,75,True,5",
		"BMW i4,N/A,False,",
		"Kia EV6,77.4,True,5",
	}, "\n"))

	tab, err := LoadCSV(p, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if r, c := tab.Shape(); r != 3 || c != 4 {
		t.Fatalf("shape = (%d,%d), want (3,4)", r, c)
	}
	want := []string{"title", "battery", "Tow_Hitch", "Number_of_seats"}
	for i, n := range tab.Names() {
		if n != want[i] {
			t.Fatalf("column %d = %q, want %q", i, n, want[i])
		}
	}
	cases := map[string]Kind{
		"title":           KindString,
		"battery":         KindNumeric,
		"Tow_Hitch":       KindBool,
		"Number_of_seats": KindNumeric,
	}
	for name, kind := range cases {
		c, _ := tab.Column(name)
		if c.Kind != kind {
			t.Errorf("%s kind = %s, want %s", name, c.Kind, kind)
		}
	}
	bat, _ := tab.Column("battery")
	if !bat.IsMissing(1) || bat.Num[2] != 77.4 {
		t.Fatalf("battery not parsed as expected: %+v", bat)
	}
	seats, _ := tab.Column("Number_of_seats")
	if seats.MissingCount() != 1 {
		t.Fatalf("empty cell should be missing")
	}
}

func TestLoadCSV_MixedColumnStaysString(t *testing.T) {
	p := writeCSV(t, "Fastcharge*\n850\n-\n")
	tab, err := LoadCSV(p, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	c, _ := tab.Column("Fastcharge*")
	if c.Kind != KindString || c.Str[1] != "-" {
		t.Fatalf("expected string column, got %s %+v", c.Kind, c.Str)
	}
}

func TestLoadCSV_HeaderOnly(t *testing.T) {
	p := writeCSV(t, "a,b\n")
	tab, err := LoadCSV(p, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if r, c := tab.Shape(); r != 0 || c != 2 {
		t.Fatalf("shape = (%d,%d), want (0,2)", r, c)
	}
}

func TestLoadCSV_BOMStripped(t *testing.T) {
	p := writeCSV(t, "\ufeffRow_ID,x\n1,2\n")
	tab, err := LoadCSV(p, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if !tab.Has("Row_ID") {
		t.Fatalf("BOM not stripped: %v", tab.Names())
	}
}

func TestLoadCSV_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		path func() string
		want error
	}{
		{"missing", func() string { return filepath.Join(dir, "nope.csv") }, ErrFileAccess},
		{"directory", func() string { return dir }, ErrFileAccess},
		{"empty", func() string { return writeCSV(t, "") }, ErrParse},
		{"ragged", func() string { return writeCSV(t, "a,b\n1,2,3\n") }, ErrParse},
		{"bad quote", func() string { return writeCSV(t, "a,b\n\"1,2\n") }, ErrParse},
		{"duplicate header", func() string { return writeCSV(t, "a,a\n1,2\n") }, ErrParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadCSV(tc.path(), DefaultLoadOptions())
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadCSV_ParseErrorCarriesLine(t *testing.T) {
	p := writeCSV(t, "a,b\n1,2\n3\n")
	_, err := LoadCSV(p, DefaultLoadOptions())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T %v", err, err)
	}
	if pe.Line != 3 {
		t.Fatalf("line = %d, want 3", pe.Line)
	}
}

func TestReadCSV_NoInference(t *testing.T) {
	opt := DefaultLoadOptions()
	opt.InferTypes = false
	tab, err := ReadCSV(strings.NewReader("x\n1\n2\n"), "inline", opt)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	c, _ := tab.Column("x")
	if c.Kind != KindString {
		t.Fatalf("kind = %s, want string", c.Kind)
	}
}

func TestReadCSV_Semicolon(t *testing.T) {
	opt := DefaultLoadOptions()
	opt.Delimiter = ';'
	tab, err := ReadCSV(strings.NewReader("a;b\n1;x\n"), "inline", opt)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if tab.NumCols() != 2 {
		t.Fatalf("cols = %d", tab.NumCols())
	}
}
