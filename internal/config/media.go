package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureMediaDirs creates the uploads tree and confirms it is writable.
// Layout: <uploads>/photos for stills, <uploads>/mp4_recordings for recordings.
func (m MediaConfig) EnsureMediaDirs() error {
	dirs := []string{m.UploadsDir, m.PhotosDir(), m.RecordingsDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create media directory %s: %w", dir, err)
		}
	}

	// Write probe: a photos dir we cannot write to makes snapshot capture
	// fail much later, at the first request. Surface that at startup.
	probe := filepath.Join(m.PhotosDir(), ".testwrite")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return fmt.Errorf("photos directory %s is not writable: %w", m.PhotosDir(), err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("failed to remove write probe: %w", err)
	}

	return nil
}
