// Package utils
package utils

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// SetupLogger makes the standard logger write to stderr and, when path is
// set, append to that file as well. The returned closer closes the file.
func SetupLogger(path string) (io.Closer, error) {
	log.SetFlags(log.LstdFlags)
	if path == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	return file, nil
}
