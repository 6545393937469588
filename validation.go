package automl

import (
	"fmt"
	"strings"
)

//////
// Const, vars, types.
//////

// ColumnType is the item type of a dataset column.
type ColumnType string

const (
	// NumberColumn holds single-precision numbers.
	NumberColumn ColumnType = "number"

	// TextColumn holds strings.
	TextColumn ColumnType = "text"

	// BoolColumn holds booleans.
	BoolColumn ColumnType = "bool"

	// KeyColumn holds key (categorical index) values.
	KeyColumn ColumnType = "key"
)

// Column describes one column of a dataset.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is the ordered column list of a dataset.
type Schema []Column

// Lookup returns the column called name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s {
		if c.Name == name {
			return c, true
		}
	}

	return Column{}, false
}

// ColumnInformation assigns a purpose to dataset columns. Only the label is
// required; columns without a purpose are left to column inference.
type ColumnInformation struct {
	LabelColumn        string
	WeightColumn       string
	NumericColumns     []string
	CategoricalColumns []string
	TextColumns        []string
	IgnoredColumns     []string
}

//////
// Methods.
//////

// Validate checks the purposes against each other and, when schema is not
// nil, against the training schema: every named column must exist and
// numeric, categorical and text columns must have a compatible type.
//
// Returns ErrInvalidColumnInfo (wrapped) on the first problem.
func (ci ColumnInformation) Validate(schema Schema) error {
	if strings.TrimSpace(ci.LabelColumn) == "" {
		return fmt.Errorf("%w: label column is required", ErrInvalidColumnInfo)
	}

	groups := []struct {
		purpose string
		columns []string
		allowed []ColumnType
	}{
		{"label", []string{ci.LabelColumn}, nil},
		{"weight", nonEmpty(ci.WeightColumn), nil},
		{"categorical", ci.CategoricalColumns, []ColumnType{NumberColumn, TextColumn}},
		{"numeric", ci.NumericColumns, []ColumnType{NumberColumn, BoolColumn}},
		{"text", ci.TextColumns, []ColumnType{TextColumn}},
		{"ignored", ci.IgnoredColumns, nil},
	}

	seen := make(map[string]string)

	for _, g := range groups {
		for _, name := range g.columns {
			if name == "" {
				return fmt.Errorf("%w: empty %s column name", ErrInvalidColumnInfo, g.purpose)
			}

			if other, dup := seen[name]; dup {
				return fmt.Errorf("%w: column %q is both %s and %s", ErrInvalidColumnInfo, name, other, g.purpose)
			}

			seen[name] = g.purpose

			if schema == nil {
				continue
			}

			col, ok := schema.Lookup(name)
			if !ok {
				return fmt.Errorf("%w: %s column %q not found in training data", ErrInvalidColumnInfo, g.purpose, name)
			}

			if g.allowed != nil && !containsType(g.allowed, col.Type) {
				return fmt.Errorf("%w: %s column %q has type %s, allowed %v", ErrInvalidColumnInfo, g.purpose, name, col.Type, g.allowed)
			}
		}
	}

	return nil
}

//////
// Exported functionalities.
//////

// ValidateSchemas checks that validation data has the columns of training
// data, in any order, with the same types.
//
// Returns ErrSchemaMismatch (wrapped) describing the first difference.
func ValidateSchemas(train, valid Schema) error {
	if len(train) != len(valid) {
		return fmt.Errorf("%w: train data has %d columns, validation data has %d", ErrSchemaMismatch, len(train), len(valid))
	}

	for _, tc := range train {
		vc, ok := valid.Lookup(tc.Name)
		if !ok {
			return fmt.Errorf("%w: column %q exists in train data but not in validation data", ErrSchemaMismatch, tc.Name)
		}

		if vc.Type != tc.Type {
			return fmt.Errorf("%w: column %q is %s in train data and %s in validation data", ErrSchemaMismatch, tc.Name, tc.Type, vc.Type)
		}
	}

	return nil
}

//////
// Helper functions.
//////

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}

	return []string{s}
}

func containsType(types []ColumnType, t ColumnType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}

	return false
}
