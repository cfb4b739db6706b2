// Package scanner discovers documents under one or more directory roots,
// honouring an extension allow-list, excluded directory names, a size cap
// and .gitignore files.
package scanner

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/dillonfkhanna/multi-search/internal/config"
)

// DefaultMaxFileSize is the size cap when none is configured (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// IgnoreFile is read in every scanned directory when gitignore support is on.
const IgnoreFile = ".gitignore"

// FileInfo describes one discovered document.
type FileInfo struct {
	Path    string // absolute path, used as the document path
	Root    string // absolute scan root the file was found under
	RelPath string // slash-separated path relative to Root
	Size    int64
	ModTime time.Time
}

// Result is one item streamed by Scan.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures what a scan accepts.
type Options struct {
	// Extensions allow-lists file extensions, lower case with the leading
	// dot. Empty accepts every extension.
	Extensions []string

	// ExcludeDirs are directory names skipped wherever they appear.
	ExcludeDirs []string

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64

	RespectGitignore bool
	FollowSymlinks   bool
}

// OptionsFrom maps the ingest configuration onto scan options.
func OptionsFrom(cfg config.IngestConfig) Options {
	return Options{
		Extensions:       cfg.Extensions,
		ExcludeDirs:      cfg.ExcludeDirs,
		MaxFileSize:      cfg.MaxFileSize,
		RespectGitignore: true,
	}
}

func (o Options) maxFileSize() int64 {
	if o.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return o.MaxFileSize
}

func (o Options) acceptsExtension(path string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range o.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (o Options) excludesDir(name string) bool {
	for _, d := range o.ExcludeDirs {
		if d == name {
			return true
		}
	}
	return false
}
