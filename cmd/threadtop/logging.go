package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// setupLogging routes the std logger to path. Without a path the logger
// keeps writing to stderr, which the alternate screen hides until exit.
func setupLogging(path string) (func() error, error) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if path == "" {
		return func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	log.SetOutput(logFile)

	return func() error {
		log.SetOutput(os.Stderr)
		if err := logFile.Close(); err != nil {
			return fmt.Errorf("closing log file: %w", err)
		}
		return nil
	}, nil
}
