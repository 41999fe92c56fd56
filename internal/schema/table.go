// Package schema infers SQLite table layouts from Go struct types.
//
// A struct maps to one table. Exported fields become columns in declaration
// order; embedded structs are flattened into their parent. The struct tag
// `sqlitez:"name,pk"` overrides the column name and marks the primary key,
// `sqlitez:"-"` skips the field.
//
//	type Person struct {
//	    ID     int64  `sqlitez:"id,pk"`
//	    Name   string
//	    Tags   []string // stored as JSON text
//	}
//
// Tables without a `pk` field get a hidden `_id INTEGER PRIMARY KEY
// AUTOINCREMENT` column that is never mapped to a field.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// HiddenKey is the primary key column used when a type declares none.
const HiddenKey = "_id"

// TagName is the struct tag consulted for column options.
const TagName = "sqlitez"

var (
	// ErrNotStruct is returned when a table is requested for a non-struct type.
	ErrNotStruct = errors.New("schema: type is not a struct")

	// ErrPrimaryKeyType is returned when the pk field is not an integer.
	ErrPrimaryKeyType = errors.New("schema: primary key must be an integer field")

	// ErrDuplicatePrimaryKey is returned when more than one field is tagged pk.
	ErrDuplicatePrimaryKey = errors.New("schema: more than one primary key field")

	// ErrDuplicateColumn is returned when two fields map to the same column.
	ErrDuplicateColumn = errors.New("schema: duplicate column")

	// ErrInvalidName is returned for identifiers that are not plain SQL names.
	ErrInvalidName = errors.New("schema: invalid identifier")

	// ErrUnsupportedType is returned for fields that cannot be stored.
	ErrUnsupportedType = errors.New("schema: unsupported field type")
)

var (
	camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
	identifier    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Namer lets a type choose its own table name.
type Namer interface {
	TableName() string
}

// Table is the inferred layout of one struct type.
type Table struct {
	Name       string
	Type       reflect.Type
	Columns    []*Column
	PrimaryKey *Column

	byName map[string]*Column
}

// Column maps one struct field to one table column.
type Column struct {
	Name       string
	Field      string
	Index      []int
	Type       reflect.Type
	SQLType    SQLType
	Kind       ValueKind
	PrimaryKey bool
}

var cache sync.Map // reflect.Type -> *Table

// Of returns the table for t, which must be a struct or pointer to struct.
// Results are cached per type.
func Of(t reflect.Type) (*Table, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrNotStruct, t)
	}
	if cached, ok := cache.Load(t); ok {
		return cached.(*Table), nil
	}

	table, err := build(t)
	if err != nil {
		return nil, err
	}
	actual, _ := cache.LoadOrStore(t, table)
	return actual.(*Table), nil
}

// For returns the table for the type parameter T.
func For[T any]() (*Table, error) {
	return Of(reflect.TypeOf((*T)(nil)).Elem())
}

func build(t reflect.Type) (*Table, error) {
	name := TableName(t)
	if !ValidIdentifier(name) {
		return nil, fmt.Errorf("%w: table %q", ErrInvalidName, name)
	}

	table := &Table{
		Name:   name,
		Type:   t,
		byName: make(map[string]*Column),
	}
	if err := table.collect(t, nil); err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}
	return table, nil
}

func (t *Table) collect(st reflect.Type, prefix []int) error {
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		tag := f.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		colName, opts := parseTag(tag)

		index := append(append([]int(nil), prefix...), i)

		if f.Anonymous && colName == "" && f.Type.Kind() == reflect.Struct && !isOpaqueStruct(f.Type) {
			if err := t.collect(f.Type, index); err != nil {
				return err
			}
			continue
		}
		if !f.IsExported() {
			continue
		}

		if colName == "" {
			colName = ColumnName(f.Name)
		}
		if !ValidIdentifier(colName) {
			return fmt.Errorf("%w: column %q", ErrInvalidName, colName)
		}
		if colName == HiddenKey && !opts["pk"] {
			return fmt.Errorf("%w: %s is reserved", ErrDuplicateColumn, HiddenKey)
		}
		if _, dup := t.byName[colName]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateColumn, colName)
		}

		kind, sqlType, err := classify(f.Type)
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}

		col := &Column{
			Name:    colName,
			Field:   f.Name,
			Index:   index,
			Type:    f.Type,
			SQLType: sqlType,
			Kind:    kind,
		}
		if opts["pk"] {
			if t.PrimaryKey != nil {
				return ErrDuplicatePrimaryKey
			}
			if !isInteger(f.Type) {
				return fmt.Errorf("%w: %s is %v", ErrPrimaryKeyType, f.Name, f.Type)
			}
			col.PrimaryKey = true
			col.SQLType = Integer
			t.PrimaryKey = col
		}

		t.Columns = append(t.Columns, col)
		t.byName[colName] = col
	}
	return nil
}

func parseTag(tag string) (string, map[string]bool) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	opts := make(map[string]bool, len(parts)-1)
	for _, p := range parts[1:] {
		opts[strings.TrimSpace(p)] = true
	}
	return strings.TrimSpace(parts[0]), opts
}

// TableName derives the table name for t: a Namer wins, otherwise the type
// name converted from camelCase to snake_case.
func TableName(t reflect.Type) string {
	if n, ok := reflect.New(t).Interface().(Namer); ok {
		return n.TableName()
	}
	return SnakeCase(t.Name())
}

// ColumnName derives the column name for a Go field name.
func ColumnName(field string) string {
	return SnakeCase(field)
}

// SnakeCase inserts an underscore at every lower-to-upper boundary and
// lower-cases the result: "PersonOnly" becomes "person_only".
func SnakeCase(s string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(s, "${1}_${2}"))
}

// ValidIdentifier reports whether s can be used unquoted as a SQL name.
func ValidIdentifier(s string) bool {
	return identifier.MatchString(s)
}

// KeyName returns the primary key column name, mapped or hidden.
func (t *Table) KeyName() string {
	if t.PrimaryKey != nil {
		return t.PrimaryKey.Name
	}
	return HiddenKey
}

// Column looks up a mapped column by name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// HasColumn reports whether name is a column of the live table, including
// the hidden key.
func (t *Table) HasColumn(name string) bool {
	if name == t.KeyName() {
		return true
	}
	_, ok := t.byName[name]
	return ok
}

// ColumnNames returns every column in table order, hidden key first.
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns)+1)
	if t.PrimaryKey == nil {
		names = append(names, HiddenKey)
	}
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

// DataColumns returns the columns that are not the primary key.
func (t *Table) DataColumns() []*Column {
	cols := make([]*Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.PrimaryKey {
			cols = append(cols, c)
		}
	}
	return cols
}

// FieldOf returns the struct field of v (a struct value) backing c.
func (c *Column) FieldOf(v reflect.Value) reflect.Value {
	return v.FieldByIndex(c.Index)
}
