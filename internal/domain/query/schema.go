package query

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var schemaYAML []byte

type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeNumber    ColumnType = "number"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
)

type Column struct {
	Type        ColumnType `yaml:"type"`
	Description string     `yaml:"description"`
}

type Table struct {
	IdentityColumn string            `yaml:"identity_column"`
	Description    string            `yaml:"description"`
	Columns        map[string]Column `yaml:"columns"`
}

// Schema is the allow-list generated plans are validated against.
type Schema struct {
	MaxLimit     int              `yaml:"max_limit"`
	DefaultLimit int              `yaml:"default_limit"`
	Operators    []string         `yaml:"operators"`
	Aggregates   []string         `yaml:"aggregates"`
	Tables       map[string]Table `yaml:"tables"`
}

// DefaultSchema parses the embedded allow-list.
func DefaultSchema() (Schema, error) {
	return ParseSchema(schemaYAML)
}

func ParseSchema(raw []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Schema{}, fmt.Errorf("parse query schema: %w", err)
	}
	if s.MaxLimit <= 0 || len(s.Tables) == 0 {
		return Schema{}, fmt.Errorf("query schema needs max_limit and tables")
	}
	if s.DefaultLimit <= 0 || s.DefaultLimit > s.MaxLimit {
		s.DefaultLimit = s.MaxLimit
	}
	for name, t := range s.Tables {
		if _, ok := t.Columns[t.IdentityColumn]; !ok {
			return Schema{}, fmt.Errorf("table %s: identity column %q is not a column", name, t.IdentityColumn)
		}
		for col, c := range t.Columns {
			switch c.Type {
			case TypeText, TypeNumber, TypeDate, TypeTimestamp:
			default:
				return Schema{}, fmt.Errorf("table %s: column %s has unknown type %q", name, col, c.Type)
			}
		}
	}
	return s, nil
}

func (s Schema) column(table, name string) (Column, bool) {
	t, ok := s.Tables[table]
	if !ok {
		return Column{}, false
	}
	c, ok := t.Columns[name]
	return c, ok
}

func (s Schema) allowsOperator(op string) bool {
	return contains(s.Operators, op)
}

func (s Schema) allowsAggregate(fn string) bool {
	return contains(s.Aggregates, fn)
}

// ColumnNames returns a table's columns in a stable order.
func (s Schema) ColumnNames(table string) []string {
	t := s.Tables[table]
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the allow-list for the planner prompt.
func (s Schema) Describe() string {
	tables := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	var b strings.Builder
	for _, name := range tables {
		t := s.Tables[name]
		fmt.Fprintf(&b, "table %s (%s); identity column %s\n", name, t.Description, t.IdentityColumn)
		for _, col := range s.ColumnNames(name) {
			c := t.Columns[col]
			fmt.Fprintf(&b, "  - %s (%s): %s\n", col, c.Type, c.Description)
		}
	}
	fmt.Fprintf(&b, "operators: %s\n", strings.Join(s.Operators, ", "))
	fmt.Fprintf(&b, "aggregates: %s\n", strings.Join(s.Aggregates, ", "))
	fmt.Fprintf(&b, "max limit: %d\n", s.MaxLimit)
	return b.String()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
