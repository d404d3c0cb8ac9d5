// Package cache keeps the portal's user index between runs so that a later
// invocation can log the same session out.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type Entry struct {
	Username   string `json:"username"`
	ServerHost string `json:"server_host"`
	UserIndex  string `json:"user_index"`
}

// Load reads the entry at path. A missing file is not an error and yields
// an empty entry.
func Load(path string) (Entry, error) {
	if path == "" {
		return Entry{}, nil
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, err
	}
	file, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(file, &e); err != nil {
		return Entry{}, fmt.Errorf("cannot parse cache file: %w", err)
	}
	return e, nil
}

// Save writes e to path. An empty path disables the cache.
func Save(path string, e Entry) error {
	if path == "" {
		return nil
	}
	file, err := json.MarshalIndent(e, "", " ")
	if err != nil {
		return err
	}
	path, err = filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, file, 0o600); err != nil {
		return fmt.Errorf("failed to write to cache file: %w", err)
	}
	return nil
}
