package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KaramelBytes/evinsights-cli/internal/utils"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"short", "kWh", 1},
		{"row", "battery: 75", 2},
		{"long", strings.Repeat("a", 4000), 1000},
		{"runes", strings.Repeat("€", 8), 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, utils.EstimateTokens(c.in))
		})
	}
}

func TestTruncateTokens(t *testing.T) {
	row := "title: Tesla Model 3\nbattery: 75\nprice_de: 54990"
	assert.Equal(t, row, utils.TruncateTokens(row, 100))
	assert.Equal(t, "", utils.TruncateTokens(row, 0))

	// 6 tokens is 24 chars, which ends inside "battery: 75".
	assert.Equal(t, "title: Tesla Model 3", utils.TruncateTokens(row, 6))

	long := strings.Repeat("x", 100)
	assert.Len(t, utils.TruncateTokens(long, 5), 20)
}

func TestPromptTokens(t *testing.T) {
	got := utils.PromptTokens(map[string]string{"system": strings.Repeat("a", 40), "question": "how much?"})
	assert.Equal(t, 10, got["system"])
	assert.Equal(t, 2, got["question"])
	assert.Equal(t, 12, got["total"])
}
