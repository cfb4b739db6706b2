package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.multisearch/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".multisearch", "logs")
	}
	return filepath.Join(home, ".multisearch", "logs")
}

// DefaultLogPath returns the default log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "multisearch.log")
}
