// Package validation checks user-supplied paths before a job starts.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Maximum input size. Sources are staged into the engine's scratch space
// as a whole, so unreasonably large files are rejected up front.
const MaxFileSizeBytes = 2 * 1024 * 1024 * 1024

// SupportedInputFormats lists the accepted input container extensions.
var SupportedInputFormats = []string{".mp4", ".mkv", ".mov", ".avi", ".webm", ".flv", ".wmv"}

// CleanPath trims whitespace and the surrounding quotes some file
// managers add when copying a path, then resolves it to an absolute
// cleaned form.
func CleanPath(input string) (string, error) {
	cleaned := strings.TrimSpace(input)
	if len(cleaned) >= 2 {
		first, last := cleaned[0], cleaned[len(cleaned)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			cleaned = cleaned[1 : len(cleaned)-1]
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// ValidateInputPath verifies the source video exists, is a regular file
// of a supported format, and is within the size limit.
func ValidateInputPath(input string) error {
	path, err := CleanPath(input)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path points to a directory, not a file: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	supported := false
	for _, s := range SupportedInputFormats {
		if ext == s {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported file format %s (supported: %s)",
			ext, strings.Join(SupportedInputFormats, ", "))
	}

	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	if info.Size() > MaxFileSizeBytes {
		return fmt.Errorf("file size %.1f MB exceeds the %d MB limit",
			float64(info.Size())/(1024*1024), MaxFileSizeBytes/(1024*1024))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot read file: %w", err)
	}
	f.Close()
	return nil
}

// ResolveOutputPath validates the destination and enforces the extension
// for the chosen format. A directory target gets a default file name
// appended.
func ResolveOutputPath(input, ext string) (string, error) {
	path, err := CleanPath(input)
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "output"+ext)
	}

	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("output directory does not exist: %s", parent)
	}
	if err != nil {
		return "", fmt.Errorf("cannot access output directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output parent is not a directory: %s", parent)
	}

	if !strings.EqualFold(filepath.Ext(path), ext) {
		path += ext
	}
	return path, nil
}
