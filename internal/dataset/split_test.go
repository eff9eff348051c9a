package dataset

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_OneHotDropsFirstSeen(t *testing.T) {
	tab := MustTable(
		Floats("battery", 60, 75, 80),
		Strings("drive_config", "AWD", "RWD", "AWD"),
		Floats("price_de", 40000, 50000, 60000),
	)
	x, y, err := Split(tab, "price_de")
	require.NoError(t, err)

	assert.Equal(t, []string{"battery", "drive_config_RWD"}, x.Names())
	assert.Equal(t, []float64{40000, 50000, 60000}, y.Values)
	assert.Equal(t, "price_de", y.Name)

	rwd, _ := x.Column("drive_config_RWD")
	assert.Equal(t, KindBool, rwd.Kind)
	assert.Equal(t, []bool{false, true, false}, rwd.Bool)

	require.Len(t, x.Encodings, 1)
	assert.Equal(t, "AWD", x.Encodings[0].Reference)
	assert.Equal(t, []string{"AWD", "RWD"}, x.Encodings[0].Levels)
	assert.Equal(t, x.NumRows(), y.Len())
}

func TestSplit_ColumnOrder(t *testing.T) {
	tab := MustTable(
		Strings("make", "Tesla", "BMW", "Kia"),
		Floats("battery", 1, 2, 3),
		Floats("price_de", 1, 2, 3),
		Bools("tow_hitch", true, false, true),
		Strings("drive_config", "FWD", "AWD", "FWD"),
	)
	x, _, err := Split(tab, "price_de")
	require.NoError(t, err)
	assert.Equal(t, []string{"battery", "tow_hitch", "make_BMW", "make_Kia", "drive_config_AWD"}, x.Names())
	assert.Equal(t, [][]float64{
		{1, 1, 0, 0, 0},
		{2, 0, 1, 0, 1},
		{3, 1, 0, 1, 0},
	}, x.Matrix())
}

func TestSplit_DoesNotMutateInput(t *testing.T) {
	tab := MustTable(Strings("drive_config", "AWD", "RWD"), Floats("price_de", 1, 2))
	before := tab.Clone()
	_, _, err := Split(tab, "price_de")
	require.NoError(t, err)
	assert.Equal(t, before.Names(), tab.Names())
}

func TestSplit_Errors(t *testing.T) {
	_, _, err := Split(nil, "price_de")
	assert.ErrorIs(t, err, ErrState)

	_, _, err = Split(MustTable(Floats("price_de", math.NaN())), "price_de")
	assert.ErrorIs(t, err, ErrState, "uncleaned table")

	_, _, err = Split(MustTable(Floats("battery", 1)), "price_de")
	assert.ErrorIs(t, err, ErrSchema)

	_, _, err = Split(MustTable(Strings("price_de", "cheap")), "price_de")
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestSplit_EmptyTable(t *testing.T) {
	tab := MustTable(Strings("make"), Floats("price_de"))
	x, y, err := Split(tab, "price_de")
	require.NoError(t, err)
	assert.Equal(t, 0, x.NumCols())
	assert.Equal(t, 0, y.Len())
}

func TestAlignRow(t *testing.T) {
	tab := MustTable(
		Floats("battery", 60, 75, 80),
		Floats("seats", 5, 5, 7),
		Bools("tow_hitch", true, false, true),
		Strings("make", "Tesla", "BMW", "Kia"),
		Strings("drive_config", "AWD", "RWD", "AWD"),
		Floats("price_de", 1, 2, 3),
	)
	x, _, err := Split(tab, "price_de")
	require.NoError(t, err)

	row, warnings, err := x.AlignRow(map[string]string{
		"battery":      "82",
		"seats":        "5",
		"tow_hitch":    "true",
		"make":         "Kia",
		"drive_config": "AWD",
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, x.Names(), row.Names())
	assert.Equal(t, [][]float64{{82, 5, 1, 0, 1, 0}}, row.Matrix())
}

func TestAlignRow_FlagsDrift(t *testing.T) {
	tab := MustTable(
		Floats("battery", 60, 75),
		Strings("make", "Tesla", "BMW"),
		Floats("price_de", 1, 2),
	)
	x, _, err := Split(tab, "price_de")
	require.NoError(t, err)

	row, warnings, err := x.AlignRow(map[string]string{"make": "Lucid", "colour": "red"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 0}}, row.Matrix())
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "Lucid")
	assert.Contains(t, warnings[1], "battery")
	assert.Contains(t, warnings[2], "colour")
}

func TestAlignRow_BadNumber(t *testing.T) {
	x, _, err := Split(MustTable(Floats("battery", 1), Floats("price_de", 1)), "price_de")
	require.NoError(t, err)
	_, _, err = x.AlignRow(map[string]string{"battery": "lots"})
	assert.Error(t, err)
}

func TestEmptyFeatureTableRoundTrip(t *testing.T) {
	tbl := MustTable(
		Floats("battery", 50, 75, 60),
		Strings("drive_config", "AWD", "RWD", "AWD"),
		Floats("price_de", 40000, 55000, 45000),
	)
	ft, _, err := Split(tbl, "price_de")
	require.NoError(t, err)

	layout := ft.Layout()
	assert.Equal(t, []FeatureColumn{{"battery", "numeric"}, {"drive_config_RWD", "bool"}}, layout)

	empty, err := EmptyFeatureTable(layout, ft.Encodings)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NumRows())

	row, warnings, err := empty.AlignRow(map[string]string{"battery": "80", "drive_config": "RWD"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, [][]float64{{80, 1}}, row.Matrix())

	_, err = EmptyFeatureTable([]FeatureColumn{{"make", "string"}}, nil)
	assert.ErrorIs(t, err, ErrSchema)
}
