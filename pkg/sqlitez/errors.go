package sqlitez

import (
	"errors"

	"sqlitez/internal/codec"
	"sqlitez/internal/schema"
	"sqlitez/pkg/sqlitez/read"
)

var (
	// ErrNotFound is returned by Get and GetByID when no row matches.
	ErrNotFound = errors.New("sqlitez: row not found")

	// ErrNoPrimaryKey is returned by Update and Delete for types without a
	// `pk` field. Use UpdateByID and DeleteByID for those.
	ErrNoPrimaryKey = errors.New("sqlitez: type has no primary key field")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sqlitez: database is closed")

	// ErrUnknownColumn is returned when a condition or projection names a
	// column the table does not have.
	ErrUnknownColumn = errors.New("sqlitez: unknown column")

	// ErrNilModel is returned when a nil pointer is passed as a row.
	ErrNilModel = errors.New("sqlitez: nil model")
)

// Errors from the schema, codec and read layers, re-exported for errors.Is.
var (
	ErrNotStruct       = schema.ErrNotStruct
	ErrPrimaryKeyType  = schema.ErrPrimaryKeyType
	ErrUnsupportedType = schema.ErrUnsupportedType
	ErrIncompatible    = codec.ErrIncompatible
	ErrInvalidColumn   = read.ErrInvalidColumn
)
