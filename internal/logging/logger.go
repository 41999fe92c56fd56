// Package logging provides config-driven categorized logging for sqlitez.
// Each category is a named child of a single zap logger. Logging is controlled
// by Config.DebugMode - when false, every category is a silent no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot   Category = "boot"   // Startup, CLI wiring
	CategoryStore  Category = "store"  // CRUD execution
	CategorySchema Category = "schema" // Reflection, DDL, column migration
	CategoryAsset  Category = "asset"  // Bundled database copy and upgrade scripts
	CategoryQuery  Category = "query"  // Condition rendering, raw queries
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Level      string          `yaml:"level" json:"level"`   // debug, info, warn, error
	Format     string          `yaml:"format" json:"format"` // json, text
	File       string          `yaml:"file" json:"file"`     // empty = stderr
	Categories map[string]bool `yaml:"categories" json:"categories"`
}

// Logger is a category-scoped logger. The zero value discards everything.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers  = make(map[Category]*Logger)
	mu       sync.RWMutex
	base     *zap.Logger
	config   Config
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize builds the zap backend from cfg. Calling it again replaces the
// backend and drops cached category loggers.
func Initialize(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	config = cfg
	loggers = make(map[Category]*Logger)
	if base != nil {
		_ = base.Sync()
		base = nil
	}

	if !cfg.DebugMode {
		return nil
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logLevel.SetLevel(level)

	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = logLevel
	zcfg.DisableStacktrace = true

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
	} else {
		zcfg.OutputPaths = []string{"stderr"}
	}

	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	base = l
	base.Named(string(CategoryBoot)).Sugar().Infof("logging initialized (level=%s format=%s)", level, cfg.Format)
	return nil
}

// SetLogger installs a caller-owned zap logger as the backend. All categories
// are enabled unless Config.Categories says otherwise.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()

	loggers = make(map[Category]*Logger)
	base = l
	config.DebugMode = l != nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// IsDebugMode returns whether logging is enabled at all
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return config.DebugMode && base != nil
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	return base != nil && config.CategoryEnabled(category)
}

// CategoryEnabled reports whether cfg lets category log. Nothing logs
// without DebugMode; categories missing from Categories are enabled.
func (cfg Config) CategoryEnabled(category Category) bool {
	if !cfg.DebugMode {
		return false
	}
	enabled, exists := cfg.Categories[string(category)]
	return !exists || enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging or the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if categoryEnabled(category) {
		l.sugar = base.Named(string(category)).Sugar()
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Enabled reports whether this logger writes anywhere.
func (l *Logger) Enabled() bool {
	return l.sugar != nil
}

// Sync flushes the backend (call at shutdown)
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// StoreWarn logs a warning to the store category
func StoreWarn(format string, args ...interface{}) { Get(CategoryStore).Warn(format, args...) }

// StoreError logs an error to the store category
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

// Schema logs to the schema category
func Schema(format string, args ...interface{}) { Get(CategorySchema).Info(format, args...) }

// SchemaDebug logs debug to the schema category
func SchemaDebug(format string, args ...interface{}) { Get(CategorySchema).Debug(format, args...) }

// SchemaWarn logs a warning to the schema category
func SchemaWarn(format string, args ...interface{}) { Get(CategorySchema).Warn(format, args...) }

// Asset logs to the asset category
func Asset(format string, args ...interface{}) { Get(CategoryAsset).Info(format, args...) }

// AssetDebug logs debug to the asset category
func AssetDebug(format string, args ...interface{}) { Get(CategoryAsset).Debug(format, args...) }

// AssetWarn logs a warning to the asset category
func AssetWarn(format string, args ...interface{}) { Get(CategoryAsset).Warn(format, args...) }

// AssetError logs an error to the asset category
func AssetError(format string, args ...interface{}) { Get(CategoryAsset).Error(format, args...) }

// QueryDebug logs debug to the query category
func QueryDebug(format string, args ...interface{}) { Get(CategoryQuery).Debug(format, args...) }

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures an operation and logs how long it took.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s took %s", t.op, ReadableDuration(elapsed))
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s took %s", t.op, ReadableDuration(elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %s (threshold: %v)", t.op, ReadableDuration(elapsed), threshold)
	} else {
		Get(t.category).Debug("%s took %s", t.op, ReadableDuration(elapsed))
	}
	return elapsed
}

// ReadableDuration renders d as "N ms", "N.N s", "N.N min" or "N.N hours".
func ReadableDuration(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < 1000:
		return fmt.Sprintf("%d ms", ms)
	case ms < 60_000:
		return fmt.Sprintf("%.1f s", float64(ms)/1000.0)
	case ms < 3_600_000:
		return fmt.Sprintf("%.1f min", float64(ms)/60_000.0)
	default:
		return fmt.Sprintf("%.1f hours", float64(ms)/3_600_000.0)
	}
}
