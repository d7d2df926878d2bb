package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type snapshot struct {
	BuiltAt time.Time     `json:"built_at"`
	Tables  []*Descriptor `json:"tables"`
}

// WriteSnapshot writes set as indented JSON to path, replacing any previous
// file. The snapshot is for inspection only and is never read back.
func WriteSnapshot(path string, set *Set) error {
	data, err := json.MarshalIndent(snapshot{BuiltAt: set.BuiltAt(), Tables: set.Descriptors()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}
