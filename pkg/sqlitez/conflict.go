package sqlitez

import "fmt"

// ConflictStrategy decides what an insert does when it hits a uniqueness
// constraint such as an existing primary key.
type ConflictStrategy int

const (
	// Abort fails the insert and rolls back the statement. This is SQLite's
	// own default.
	Abort ConflictStrategy = iota
	// Replace deletes the conflicting row and inserts the new one.
	Replace
	// Ignore skips the row. Insert then returns -1.
	Ignore
)

func (s ConflictStrategy) String() string {
	switch s {
	case Abort:
		return "abort"
	case Replace:
		return "replace"
	case Ignore:
		return "ignore"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// clause is the INSERT modifier, "" for Abort.
func (s ConflictStrategy) clause() string {
	switch s {
	case Replace:
		return "OR REPLACE"
	case Ignore:
		return "OR IGNORE"
	}
	return ""
}

// InsertOption tunes Insert and InsertAll.
type InsertOption func(*insertConfig)

type insertConfig struct {
	conflict ConflictStrategy
}

// OnConflict sets the conflict strategy.
func OnConflict(s ConflictStrategy) InsertOption {
	return func(c *insertConfig) {
		c.conflict = s
	}
}

func newInsertConfig(opts []InsertOption) insertConfig {
	var cfg insertConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
