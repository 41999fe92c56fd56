// Package codec moves Go field values in and out of SQLite columns.
//
// Scalars travel as the driver's native int64, float64, string and []byte.
// Booleans are stored as 0/1, times as text in TimeLayout, and nested
// structs, slices, arrays and maps as JSON text.
package codec

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"sqlitez/internal/schema"
)

// TimeLayout is the text form of stored times. It is the first layout the
// mattn/go-sqlite3 driver tries when reading DATETIME columns.
const TimeLayout = "2006-01-02 15:04:05.999999999-07:00"

var timeLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ErrIncompatible is returned when a column value cannot be converted to
// the field type.
var ErrIncompatible = errors.New("codec: incompatible data type")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	timeType    = reflect.TypeOf(time.Time{})
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// Encode converts the field value v of column col into a driver value.
func Encode(col *schema.Column, v reflect.Value) (interface{}, error) {
	out, err := encode(col.Kind, v)
	if err != nil {
		return nil, fmt.Errorf("%w: column %s: %v", ErrIncompatible, col.Name, err)
	}
	return out, nil
}

func encode(kind schema.ValueKind, v reflect.Value) (interface{}, error) {
	if valuer, ok, isNil := asValuer(v); ok {
		if isNil {
			return nil, nil
		}
		return valuer.Value()
	}

	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}

	switch kind {
	case schema.KindTime:
		return v.Interface().(time.Time).Format(TimeLayout), nil
	case schema.KindBytes:
		if v.IsNil() {
			return nil, nil
		}
		return append([]byte(nil), v.Bytes()...), nil
	case schema.KindJSON:
		if (v.Kind() == reflect.Slice || v.Kind() == reflect.Map || v.Kind() == reflect.Interface) && v.IsNil() {
			return nil, nil
		}
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return nil, err
		}
		return string(data), nil
	case schema.KindScanner:
		return nil, fmt.Errorf("%v does not implement driver.Valuer", v.Type())
	}
	return encodeScalar(v)
}

func encodeScalar(v reflect.Value) (interface{}, error) {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("uint %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	}
	return nil, fmt.Errorf("unsupported kind %v", v.Kind())
}

// asValuer returns v as a driver.Valuer, taking its address or copying it
// when only the pointer type implements the interface.
func asValuer(v reflect.Value) (driver.Valuer, bool, bool) {
	if !v.IsValid() {
		return nil, false, false
	}
	t := v.Type()
	if t.Implements(valuerType) {
		if t.Kind() == reflect.Pointer && v.IsNil() {
			return nil, true, true
		}
		return v.Interface().(driver.Valuer), true, false
	}
	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(valuerType) {
		if v.CanAddr() {
			return v.Addr().Interface().(driver.Valuer), true, false
		}
		tmp := reflect.New(t)
		tmp.Elem().Set(v)
		return tmp.Interface().(driver.Valuer), true, false
	}
	return nil, false, false
}

// Arg converts a free-standing value (a condition argument, say) to the
// form Encode would store it in, so comparisons match stored data.
func Arg(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if valuer, ok := value.(driver.Valuer); ok {
		return valuer.Value()
	}
	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	t := v.Type()
	switch {
	case t == timeType:
		return encode(schema.KindTime, v)
	case schema.IsBytes(t):
		return encode(schema.KindBytes, v)
	}
	switch v.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
		return encode(schema.KindJSON, v)
	}
	return encodeScalar(v)
}

// Decode stores the driver value src into dst, the field backing col.
func Decode(col *schema.Column, src interface{}, dst reflect.Value) error {
	if err := decode(col.Kind, src, dst); err != nil {
		return fmt.Errorf("%w: column %s: %v", ErrIncompatible, col.Name, err)
	}
	return nil
}

func decode(kind schema.ValueKind, src interface{}, dst reflect.Value) error {
	if src == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	if reflect.PointerTo(dst.Type()).Implements(scannerType) {
		ptr := reflect.New(dst.Type())
		if err := ptr.Interface().(sql.Scanner).Scan(src); err != nil {
			return err
		}
		dst.Set(ptr.Elem())
		return nil
	}

	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if err := decode(kind, src, elem.Elem()); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	switch kind {
	case schema.KindTime:
		t, err := toTime(src)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	case schema.KindBytes:
		switch s := src.(type) {
		case []byte:
			dst.SetBytes(append([]byte(nil), s...))
		case string:
			dst.SetBytes([]byte(s))
		default:
			return fmt.Errorf("cannot store %T in %v", src, dst.Type())
		}
		return nil
	case schema.KindJSON:
		var text []byte
		switch s := src.(type) {
		case []byte:
			text = s
		case string:
			text = []byte(s)
		default:
			return fmt.Errorf("cannot decode JSON from %T", src)
		}
		ptr := reflect.New(dst.Type())
		if err := json.Unmarshal(text, ptr.Interface()); err != nil {
			return err
		}
		dst.Set(ptr.Elem())
		return nil
	case schema.KindScanner:
		return fmt.Errorf("%v does not implement sql.Scanner", dst.Type())
	}
	return decodeScalar(src, dst)
}

func decodeScalar(src interface{}, dst reflect.Value) error {
	switch dst.Kind() {
	case reflect.Bool:
		b, err := toBool(src)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(src)
		if err != nil {
			return err
		}
		if dst.OverflowInt(n) {
			return fmt.Errorf("%d overflows %v", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(src)
		if err != nil {
			return err
		}
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("%d overflows %v", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(src)
		if err != nil {
			return err
		}
		dst.SetFloat(f)
	case reflect.String:
		dst.SetString(toString(src))
	default:
		return fmt.Errorf("unsupported kind %v", dst.Kind())
	}
	return nil
}

func toInt64(src interface{}) (int64, error) {
	switch s := src.(type) {
	case int64:
		return s, nil
	case float64:
		if s != math.Trunc(s) {
			return 0, fmt.Errorf("%v is not an integer", s)
		}
		return int64(s), nil
	case bool:
		if s {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return s.Unix(), nil
	case []byte:
		return parseInt(string(s))
	case string:
		return parseInt(s)
	}
	return 0, fmt.Errorf("cannot convert %T to integer", src)
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("cannot parse %q as integer", s)
	}
	return int64(f), nil
}

func toFloat64(src interface{}) (float64, error) {
	switch s := src.(type) {
	case float64:
		return s, nil
	case int64:
		return float64(s), nil
	case bool:
		if s {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to float", src)
}

func toBool(src interface{}) (bool, error) {
	switch s := src.(type) {
	case bool:
		return s, nil
	case int64:
		return s != 0, nil
	case float64:
		return s != 0, nil
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(s)))
	case string:
		return strconv.ParseBool(strings.TrimSpace(s))
	}
	return false, fmt.Errorf("cannot convert %T to bool", src)
}

func toString(src interface{}) string {
	switch s := src.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		return s.Format(TimeLayout)
	}
	return fmt.Sprint(src)
}

func toTime(src interface{}) (time.Time, error) {
	switch s := src.(type) {
	case time.Time:
		return s, nil
	case int64:
		return time.Unix(s, 0), nil
	case float64:
		sec, frac := math.Modf(s)
		return time.Unix(int64(sec), int64(frac*1e9)), nil
	case []byte:
		return parseTime(string(s))
	case string:
		return parseTime(s)
	}
	return time.Time{}, fmt.Errorf("cannot convert %T to time", src)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}
