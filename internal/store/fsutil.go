package store

import (
	"os"
	"path/filepath"
	"strings"
)

// ensureDir recursively creates dir and returns the path it created.
// An empty or current-directory path means no directory is needed and
// returns "" without touching the filesystem.
func ensureDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" || dir == "." {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", NewErrorWithCause("CreateDirectory", "Failed to create directory", err)
	}
	return dir, nil
}

// ensureParent creates the parent directory of path.
func ensureParent(path string) error {
	_, err := ensureDir(filepath.Dir(path))
	return err
}

// readFileIfPresent reads path, mapping a missing file to nil content.
// Any other read failure is propagated.
func readFileIfPresent(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, NewErrorWithCause("ReadFile", "Failed to read file", err)
	}
	return data, nil
}

// replaceFile atomically replaces the content of path: the new content
// is written to a temporary file in the same directory and renamed into
// place, so a reader observes either the old file or the new one, never
// a partial write. On failure the temporary file is removed best-effort
// and the destination keeps its previous content.
func replaceFile(path string, content []byte) error {
	dir := filepath.Dir(path)

	tempFile, err := os.CreateTemp(dir, ".tmp_")
	if err != nil {
		return NewErrorWithCause("CreateTempFile", "Failed to create temporary file", err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	if _, err := tempFile.Write(content); err != nil {
		return NewErrorWithCause("WriteTempFile", "Failed to write temporary file", err)
	}

	if err := tempFile.Close(); err != nil {
		return NewErrorWithCause("CloseTempFile", "Failed to close temporary file", err)
	}

	// Atomic move
	if err := os.Rename(tempFile.Name(), path); err != nil {
		return NewErrorWithCause("AtomicMove", "Failed to move file to final location", err)
	}

	return nil
}

// appendFile appends payload to path in a single write, creating the
// file if it does not exist.
func appendFile(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return NewErrorWithCause("OpenAppend", "Failed to open file for append", err)
	}
	defer f.Close()

	if _, err := f.Write(payload); err != nil {
		return NewErrorWithCause("AppendData", "Failed to append data", err)
	}

	if err := f.Close(); err != nil {
		return NewErrorWithCause("CloseFile", "Failed to close file after append", err)
	}

	return nil
}
