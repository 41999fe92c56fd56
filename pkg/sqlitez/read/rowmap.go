package read

import (
	"strings"

	"github.com/mitchellh/mapstructure"

	"sqlitez/internal/codec"
	"sqlitez/internal/schema"
)

// RowMap is one result row keyed by column name.
type RowMap map[string]interface{}

// Result is a raw query result with the column order of the statement.
type Result struct {
	Columns []string
	Rows    []RowMap
}

// Decode copies the row into dst, a pointer to a struct. Keys match the
// `sqlitez` tag, the snake_case field name or the field name itself, and
// values are converted loosely (text "42" fills an int).
func (m RowMap) Decode(dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          schema.TagName,
		WeaklyTypedInput: true,
		Result:           dst,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(codec.TimeLayout),
		),
		MatchName: func(key, field string) bool {
			return strings.EqualFold(key, field) || key == schema.SnakeCase(field)
		},
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]interface{}(m))
}

// Int returns column as an int64 when it holds an integer.
func (m RowMap) Int(column string) (int64, bool) {
	switch v := m[column].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}
