package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillonfkhanna/multi-search/internal/scanner"
	"github.com/dillonfkhanna/multi-search/internal/watcher"
)

func newCoordinator(t *testing.T, opts scanner.Options) (*Coordinator, *Manager) {
	t.Helper()
	m := openTest(t, "", nil)
	s, err := scanner.New(opts)
	require.NoError(t, err)
	return NewCoordinator(m, s), m
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func indexedPaths(t *testing.T, m *Manager) []string {
	t.Helper()
	docs, err := m.manifest.Documents(context.Background())
	require.NoError(t, err)
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Path
	}
	return out
}

func TestCoordinator_IndexRoots_SyncsWithDisk(t *testing.T) {
	// Given: a notes directory with two documents
	root := t.TempDir()
	fox := filepath.Join(root, "fox.md")
	dog := filepath.Join(root, "dog.txt")
	write(t, fox, "red fox jumps")
	write(t, dog, "lazy dog sleeps")
	c, m := newCoordinator(t, scanner.Options{Extensions: []string{".md", ".txt"}})

	res, err := c.IndexRoots(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)

	// When: one is removed and the root is indexed again
	require.NoError(t, os.Remove(dog))
	res, err = c.IndexRoots(context.Background(), root)

	// Then: it is deleted and the other skipped
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{fox}, indexedPaths(t, m))
}

func TestCoordinator_IndexRoots_LeavesOtherRootsAlone(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	write(t, filepath.Join(a, "a.md"), "alpha")
	write(t, filepath.Join(b, "b.md"), "beta")
	c, m := newCoordinator(t, scanner.Options{})

	_, err := c.IndexRoots(context.Background(), a, b)
	require.NoError(t, err)

	res, err := c.IndexRoots(context.Background(), a)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
	assert.Len(t, indexedPaths(t, m), 2)
}

func TestCoordinator_HandleEvents(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "keep.md")
	gone := filepath.Join(root, "gone.md")
	write(t, keep, "quick brown fox")
	write(t, gone, "lazy dog")
	c, m := newCoordinator(t, scanner.Options{MaxFileSize: 64})
	_, err := c.IndexRoots(context.Background(), root)
	require.NoError(t, err)

	// When: one file changes, one is deleted and a directory appears
	write(t, keep, "quick brown fox again")
	require.NoError(t, os.Remove(gone))
	newDir := filepath.Join(root, "new")
	write(t, filepath.Join(newDir, "n.md"), "new note")

	res, err := c.HandleEvents(context.Background(), []watcher.FileEvent{
		{Path: keep, Root: root, Operation: watcher.OpModify, Timestamp: time.Now()},
		{Path: gone, Root: root, Operation: watcher.OpDelete},
		{Path: newDir, Root: root, Operation: watcher.OpCreate, IsDir: true},
	})

	// Then: all three are applied in one pass
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 1, res.Deleted)
	assert.ElementsMatch(t, []string{keep, filepath.Join(newDir, "n.md")}, indexedPaths(t, m))
}

func TestCoordinator_HandleEvents_RemovedDirectory(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "project")
	write(t, filepath.Join(dir, "a.md"), "a")
	write(t, filepath.Join(dir, "b.md"), "b")
	write(t, filepath.Join(root, "other.md"), "other")
	c, m := newCoordinator(t, scanner.Options{})
	_, err := c.IndexRoots(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	res, err := c.HandleEvents(context.Background(), []watcher.FileEvent{
		{Path: dir, Root: root, Operation: watcher.OpDelete},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Equal(t, []string{filepath.Join(root, "other.md")}, indexedPaths(t, m))
}

func TestCoordinator_HandleEvents_OversizedFileIsRemoved(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "grow.md")
	write(t, path, "small")
	c, m := newCoordinator(t, scanner.Options{MaxFileSize: 16})
	_, err := c.IndexRoots(context.Background(), root)
	require.NoError(t, err)

	write(t, path, "this content is now well past the cap")
	res, err := c.HandleEvents(context.Background(), []watcher.FileEvent{
		{Path: path, Root: root, Operation: watcher.OpModify},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Empty(t, indexedPaths(t, m))
}

func TestCoordinator_HandleEvents_IgnoreChange(t *testing.T) {
	// Given: an indexed draft
	root := t.TempDir()
	draft := filepath.Join(root, "draft.md")
	write(t, draft, "draft")
	write(t, filepath.Join(root, "final.md"), "final")
	s, err := scanner.New(scanner.Options{Extensions: []string{".md"}, RespectGitignore: true})
	require.NoError(t, err)
	m := openTest(t, "", nil)
	c := NewCoordinator(m, s)
	_, err = c.IndexRoots(context.Background(), root)
	require.NoError(t, err)

	// When: a .gitignore starts excluding it
	write(t, filepath.Join(root, ".gitignore"), "draft.md\n")
	s.Invalidate(root, root)
	res, err := c.HandleEvents(context.Background(), []watcher.FileEvent{
		{Path: root, Root: root, Operation: watcher.OpIgnoreChange, IsDir: true},
	})

	// Then: the draft is removed and the rest is untouched
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{filepath.Join(root, "final.md")}, indexedPaths(t, m))
}

func TestCoordinator_HandleEvents_Empty(t *testing.T) {
	c, _ := newCoordinator(t, scanner.Options{})

	res, err := c.HandleEvents(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, res.PassID)
}
