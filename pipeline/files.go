package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates path (and parents) when missing.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// ScanAndMove loads every file in sourceDir whose name passes match, then
// archives it into destDir (with postfix inserted before the extension) and
// removes the original. Returns the loaded contents keyed by original file
// name.
func ScanAndMove(sourceDir, destDir string, match func(name string) bool, postfix string) (map[string][]byte, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", sourceDir, err)
	}

	contents := map[string][]byte{}
	for _, entry := range entries {
		if entry.IsDir() || !match(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sourceDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		contents[entry.Name()] = data
	}

	for name, data := range contents {
		ext := filepath.Ext(name)
		archived := strings.TrimSuffix(name, ext) + postfix + ext
		if err := os.WriteFile(filepath.Join(destDir, archived), data, 0o644); err != nil {
			return nil, fmt.Errorf("archive %s: %w", name, err)
		}
		if err := os.Remove(filepath.Join(sourceDir, name)); err != nil {
			return nil, fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return contents, nil
}
