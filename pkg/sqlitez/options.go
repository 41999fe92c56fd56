package sqlitez

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	// Registers "sqlite3".
	_ "github.com/mattn/go-sqlite3"
	// Registers "sqlite".
	_ "modernc.org/sqlite"
)

const (
	// DriverCgo is github.com/mattn/go-sqlite3.
	DriverCgo = "sqlite3"
	// DriverPure is modernc.org/sqlite, for builds without cgo.
	DriverPure = "sqlite"

	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"
)

// DefaultPragmas are applied to file databases when Options.Pragmas is nil.
var DefaultPragmas = []string{
	"busy_timeout = 5000",
	"journal_mode = WAL",
	"synchronous = NORMAL",
}

// Options configure Open.
type Options struct {
	// Path is a file path, a file: URI, or MemoryPath.
	Path string
	// Driver is DriverCgo (default) or DriverPure.
	Driver string
	// Pragmas run once after connecting, without the PRAGMA keyword.
	Pragmas []string
	// Logger, when set, becomes the backend of the categorized logs.
	Logger *zap.Logger
	// Registerer receives the operation metrics. Nil disables registration.
	Registerer prometheus.Registerer
	// MaxOpenConns defaults to 1. Raising it breaks MemoryPath, where every
	// connection sees its own database.
	MaxOpenConns int
}

func (o Options) withDefaults() Options {
	if o.Driver == "" {
		o.Driver = DriverCgo
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 1
	}
	if o.Pragmas == nil && !o.inMemory() {
		o.Pragmas = DefaultPragmas
	}
	return o
}

func (o Options) validate() error {
	if o.Path == "" {
		return fmt.Errorf("sqlitez: path is required")
	}
	switch o.Driver {
	case DriverCgo, DriverPure:
	default:
		return fmt.Errorf("sqlitez: unknown driver %q (want %q or %q)", o.Driver, DriverCgo, DriverPure)
	}
	return nil
}

func (o Options) inMemory() bool {
	return o.Path == MemoryPath || strings.Contains(o.Path, "mode=memory")
}
