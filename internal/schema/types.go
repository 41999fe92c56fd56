package schema

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// SQLType is the declared type of a column. It selects SQLite's type
// affinity.
type SQLType string

const (
	Integer  SQLType = "INTEGER"
	Real     SQLType = "REAL"
	Text     SQLType = "TEXT"
	Blob     SQLType = "BLOB"
	DateTime SQLType = "DATETIME"
)

// ValueKind tells the codec how a field travels to and from a column.
type ValueKind int

const (
	KindScalar  ValueKind = iota // bool, numbers, strings
	KindBytes                    // []byte as BLOB
	KindTime                     // time.Time
	KindJSON                     // nested struct, slice, array or map as JSON text
	KindScanner                  // sql.Scanner + driver.Valuer decide for themselves
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	case KindJSON:
		return "json"
	case KindScanner:
		return "scanner"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// IsScanner reports whether t round-trips through database/sql on its own.
func IsScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerType) &&
		(t.Implements(valuerType) || reflect.PointerTo(t).Implements(valuerType))
}

// IsBytes reports whether t is a byte slice.
func IsBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

// isOpaqueStruct reports struct types that are stored whole rather than
// flattened when embedded.
func isOpaqueStruct(t reflect.Type) bool {
	return t == timeType || IsScanner(t)
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// classify picks the codec kind and declared column type for a field type.
func classify(t reflect.Type) (ValueKind, SQLType, error) {
	if IsScanner(t) {
		return KindScanner, Text, nil
	}
	if t.Kind() == reflect.Pointer {
		return classify(t.Elem())
	}
	if t == timeType {
		return KindTime, DateTime, nil
	}
	if IsBytes(t) {
		return KindBytes, Blob, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return KindScalar, Integer, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindScalar, Integer, nil
	case reflect.Float32, reflect.Float64:
		return KindScalar, Real, nil
	case reflect.String:
		return KindScalar, Text, nil
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		return KindJSON, Text, nil
	case reflect.Interface:
		// Dynamic values are stored as JSON and decoded into generic types.
		return KindJSON, Text, nil
	default:
		return 0, "", fmt.Errorf("%w: %v", ErrUnsupportedType, t)
	}
}
