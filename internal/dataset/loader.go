package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultNAValues are the cell values read as missing.
var DefaultNAValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a", "nan", "null",
}

// LoadOptions tunes LoadCSV.
type LoadOptions struct {
	Delimiter rune
	NAValues  []string
	// InferTypes converts all-numeric and all-boolean columns. When false every column is a string.
	InferTypes bool
}

// DefaultLoadOptions returns comma-separated, type-inferring options.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{Delimiter: ',', NAValues: DefaultNAValues, InferTypes: true}
}

// LoadCSV reads a delimited file with a header row.
func LoadCSV(path string, opt LoadOptions) (*Table, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	if !st.Mode().IsRegular() {
		return nil, &FileAccessError{Path: path, Err: fmt.Errorf("not a regular file")}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	defer f.Close()
	return ReadCSV(f, path, opt)
}

// ReadCSV parses r as delimited text. name is used in error messages.
func ReadCSV(r io.Reader, name string, opt LoadOptions) (*Table, error) {
	if opt.Delimiter == 0 {
		opt.Delimiter = ','
	}
	if opt.NAValues == nil {
		opt.NAValues = DefaultNAValues
	}
	cr := csv.NewReader(bufio.NewReader(r))
	cr.Comma = opt.Delimiter
	cr.FieldsPerRecord = 0
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ParseError{Path: name, Err: fmt.Errorf("no header row")}
	}
	if err != nil {
		return nil, wrapCSVError(name, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return nil, &ParseError{Path: name, Line: 1, Err: fmt.Errorf("duplicate column %q", h)}
		}
		seen[h] = true
	}

	raw := make([][]string, len(header))
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapCSVError(name, err)
		}
		for i, v := range rec {
			raw[i] = append(raw[i], v)
		}
	}

	na := make(map[string]bool, len(opt.NAValues))
	for _, v := range opt.NAValues {
		na[v] = true
	}
	cols := make([]*Column, len(header))
	for i, h := range header {
		cols[i] = buildColumn(h, raw[i], na, opt.InferTypes)
	}
	return NewTable(cols...)
}

func wrapCSVError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Path: name, Line: pe.Line, Err: pe.Err}
	}
	return &ParseError{Path: name, Err: err}
}

// buildColumn applies missing-value detection and, optionally, type inference.
// A column with no present values is numeric, matching an all-NaN float column.
func buildColumn(name string, vals []string, na map[string]bool, infer bool) *Column {
	valid := make([]bool, len(vals))
	present := 0
	for i, v := range vals {
		valid[i] = !na[v]
		if valid[i] {
			present++
		}
	}
	if vals == nil {
		vals = []string{}
	}
	str := &Column{Name: name, Kind: KindString, Str: vals, Valid: valid}
	if !infer {
		return str
	}

	num := make([]float64, len(vals))
	isNum := true
	for i, v := range vals {
		if !valid[i] {
			continue
		}
		f, ok := parseFloat(v)
		if !ok {
			isNum = false
			break
		}
		num[i] = f
	}
	if isNum {
		return &Column{Name: name, Kind: KindNumeric, Num: num, Valid: valid}
	}

	if present == len(vals) {
		b := make([]bool, len(vals))
		for i, v := range vals {
			switch v {
			case "True", "TRUE", "true":
				b[i] = true
			case "False", "FALSE", "false":
			default:
				return str
			}
		}
		return &Column{Name: name, Kind: KindBool, Bool: b, Valid: valid}
	}
	return str
}
