package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// ignoreCacheSize bounds the number of per-directory matchers kept by a
// long-running watcher. Keys are root and directory joined by a NUL.
const ignoreCacheSize = 1000

// Scanner walks document roots. It is safe for concurrent use.
type Scanner struct {
	opts    Options
	ignores *lru.Cache[string, *IgnoreMatcher]
}

// New creates a Scanner.
func New(opts Options) (*Scanner, error) {
	cache, err := lru.New[string, *IgnoreMatcher](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create ignore cache: %w", err)
	}
	return &Scanner{opts: opts, ignores: cache}, nil
}

// Scan walks root and streams every accepted file. The channel is closed
// when the walk ends; a walk error other than cancellation is sent as the
// last result.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan Result, error) {
	absRoot, err := absDir(root)
	if err != nil {
		return nil, err
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		err := s.walk(ctx, absRoot, absRoot, func(fi *FileInfo) error {
			select {
			case results <- Result{File: fi}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			select {
			case results <- Result{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return results, nil
}

// Collect scans every root concurrently and returns the accepted files
// sorted by path.
func (s *Scanner) Collect(ctx context.Context, roots ...string) ([]FileInfo, error) {
	perRoot := make([][]FileInfo, len(roots))
	g, gctx := errgroup.WithContext(ctx)
	for i, root := range roots {
		absRoot, err := absDir(root)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			return s.walk(gctx, absRoot, absRoot, func(fi *FileInfo) error {
				perRoot[i] = append(perRoot[i], *fi)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var files []FileInfo
	for _, batch := range perRoot {
		for _, fi := range batch {
			// Nested roots would otherwise yield the same file twice.
			if !seen[fi.Path] {
				seen[fi.Path] = true
				files = append(files, fi)
			}
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// CollectUnder scans dir, a directory inside root, applying root's ignore
// rules. The watcher uses it for directories created after the initial scan.
func (s *Scanner) CollectUnder(ctx context.Context, root, dir string) ([]FileInfo, error) {
	var files []FileInfo
	err := s.walk(ctx, root, dir, func(fi *FileInfo) error {
		files = append(files, *fi)
		return nil
	})
	return files, err
}

func (s *Scanner) walk(ctx context.Context, root, start string, emit func(*FileInfo) error) error {
	maxSize := s.opts.maxFileSize()
	return filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == start {
				return err
			}
			slog.Debug("scan_entry_skipped", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		if d.IsDir() {
			if path != start && !s.AcceptDir(root, path) {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := s.fileInfo(path, d)
		if err != nil || info == nil {
			return nil
		}
		if info.Size() > maxSize {
			slog.Debug("scan_file_too_large", slog.String("path", path), slog.Int64("size", info.Size()))
			return nil
		}
		if !s.AcceptFile(root, path) {
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		return emit(&FileInfo{
			Path:    path,
			Root:    root,
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
}

// fileInfo returns nil for anything that is not a regular file after the
// symlink policy is applied.
func (s *Scanner) fileInfo(path string, d fs.DirEntry) (fs.FileInfo, error) {
	if d.Type()&fs.ModeSymlink != 0 {
		if !s.opts.FollowSymlinks {
			return nil, nil
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil, err
		}
		return info, nil
	}
	if !d.Type().IsRegular() {
		return nil, nil
	}
	return d.Info()
}

// AcceptDir reports whether the directory dir under root should be
// descended into.
func (s *Scanner) AcceptDir(root, dir string) bool {
	if s.opts.excludesDir(filepath.Base(dir)) {
		return false
	}
	return !s.ignored(root, dir, true)
}

// AcceptFile applies the extension, exclusion and ignore rules to path.
// The size cap and file type are checked by the caller.
func (s *Scanner) AcceptFile(root, path string) bool {
	if !s.opts.acceptsExtension(path) {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
		if part != "." && s.opts.excludesDir(part) {
			return false
		}
	}
	return !s.ignored(root, path, false)
}

// MaxFileSize returns the effective size cap.
func (s *Scanner) MaxFileSize() int64 {
	return s.opts.maxFileSize()
}

// Invalidate drops the cached ignore rules of dir under root, after its
// .gitignore changed.
func (s *Scanner) Invalidate(root, dir string) {
	s.ignores.Remove(root + "\x00" + dir)
}

// ignored consults the .gitignore of root and of every directory between
// root and path.
func (s *Scanner) ignored(root, path string, isDir bool) bool {
	if !s.opts.RespectGitignore {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	dir := root
	for _, part := range append([]string{""}, strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")...) {
		if part == "." {
			continue
		}
		if part != "" {
			dir = filepath.Join(dir, part)
		}
		if m := s.matcher(root, dir); m.Len() > 0 && m.Match(rel, isDir) {
			return true
		}
	}
	return false
}

func (s *Scanner) matcher(root, dir string) *IgnoreMatcher {
	key := root + "\x00" + dir
	if m, ok := s.ignores.Get(key); ok {
		return m
	}
	m := NewIgnoreMatcher()
	base, _ := filepath.Rel(root, dir)
	if base == "." {
		base = ""
	}
	if err := m.AddFile(filepath.Join(dir, IgnoreFile), filepath.ToSlash(base)); err != nil && !os.IsNotExist(err) {
		slog.Warn("ignore_file_unreadable", slog.String("dir", dir), slog.String("error", err.Error()))
	}
	s.ignores.Add(key, m)
	return m
}

func absDir(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root path is not a directory: %s", abs)
	}
	return abs, nil
}
