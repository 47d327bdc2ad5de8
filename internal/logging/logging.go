// Package logging provides category-named zap loggers sharing one core.
// Categories keep pipeline, LLM, HTTP and usage logs separable without
// threading logger instances through every constructor.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryPipeline Category = "pipeline" // stage orchestration
	CategoryLLM      Category = "llm"      // model calls, retries, streaming
	CategoryAPI      Category = "api"      // HTTP/SSE boundary
	CategoryUsage    Category = "usage"    // token and cost accounting
)

var (
	mu      sync.RWMutex
	root    = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
)

// Initialize installs the process-wide root logger. debug switches the
// level to Debug and console encoding; production mode logs JSON at Info.
func Initialize(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	Replace(logger)
	return nil
}

// Replace swaps the root logger. Useful for tests.
func Replace(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.Logger)
}

// For returns the named logger for a category.
func For(cat Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := root.Named(string(cat))
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
