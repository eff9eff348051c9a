package dataset

import "fmt"

// Schema declares the cleaning contract for a listings file.
type Schema struct {
	// Rename maps source header names to canonical names.
	Rename map[string]string
	// Title is the free-text column Make is derived from.
	Title string
	// Make receives the first token of Title.
	Make string
	// Target is the regression target column.
	Target string
	// Drop lists columns removed after the make derivation.
	Drop []string
	// Numeric lists columns coerced to numbers. Each must be present.
	Numeric []string
}

// EVSchema returns the schema for the electric vehicle listings dataset.
func EVSchema() Schema {
	return Schema{
		Rename: map[string]string{
			"price-range":                         "price_range",
			"0 - 100":                             "acceleration_0_100",
			"Top Speed":                           "top_speed",
			"Range*":                              "range",
			"Efficiency*":                         "efficiency",
			"Fastcharge*":                         "fastcharge",
			"Germany_price_before_incentives":     "price_de",
			"Netherlands_price_before_incentives": "price_nl",
			"UK_price_after_incentives":           "price_uk",
			"Drive_Configuration":                 "drive_config",
			"Tow_Hitch":                           "tow_hitch",
			"Towing_capacity_in_kg":               "towing_capacity",
			"Number_of_seats":                     "seats",
		},
		Title:  "title",
		Make:   "make",
		Target: "price_de",
		Drop:   []string{"Row_ID", "title", "price_range", "price_nl", "price_uk"},
		Numeric: []string{
			"battery", "acceleration_0_100", "top_speed", "range",
			"efficiency", "fastcharge", "towing_capacity",
		},
	}
}

// Validate checks the schema is internally consistent.
func (s Schema) Validate() error {
	if s.Target == "" {
		return fmt.Errorf("schema: target column is required")
	}
	if s.Make != "" && s.Title == "" {
		return fmt.Errorf("schema: make derivation needs a title column")
	}
	for _, d := range s.Drop {
		if d == s.Target {
			return fmt.Errorf("schema: target %q is also in the drop list", d)
		}
		if d == s.Make && s.Make != "" {
			return fmt.Errorf("schema: derived column %q is also in the drop list", d)
		}
	}
	seen := make(map[string]bool, len(s.Rename))
	for _, to := range s.Rename {
		if seen[to] {
			return fmt.Errorf("schema: two source columns rename to %q", to)
		}
		seen[to] = true
	}
	return nil
}
