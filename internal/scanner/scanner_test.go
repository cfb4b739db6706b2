package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func newScanner(t *testing.T, opts Options) *Scanner {
	t.Helper()
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func TestScanner_Collect_AppliesFilters(t *testing.T) {
	// Given: a tree with accepted, excluded, ignored and oversized files
	root := t.TempDir()
	writeFile(t, root, "notes/fox.md", "# Fox")
	writeFile(t, root, "notes/dog.txt", "lazy dog")
	writeFile(t, root, "notes/image.png", "png")
	writeFile(t, root, "node_modules/pkg/readme.md", "vendored")
	writeFile(t, root, "drafts/secret.md", "ignored")
	writeFile(t, root, "big.txt", strings.Repeat("x", 200))
	writeFile(t, root, ".gitignore", "drafts/\n")

	s := newScanner(t, Options{
		Extensions:       []string{".md", ".txt"},
		ExcludeDirs:      []string{"node_modules"},
		MaxFileSize:      100,
		RespectGitignore: true,
	})

	// When: the root is collected
	files, err := s.Collect(context.Background(), root)

	// Then: only the two notes remain, sorted, with absolute paths
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/dog.txt", "notes/fox.md"}, relPaths(files))
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Equal(t, root, f.Root)
		assert.False(t, f.ModTime.IsZero())
	}
}

func TestScanner_Collect_NestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/keep.md", "keep")
	writeFile(t, root, "a/tmp.md", "drop")
	writeFile(t, root, "b/tmp.md", "keep, rule is scoped to a/")
	writeFile(t, root, "a/.gitignore", "tmp.md\n")

	s := newScanner(t, Options{RespectGitignore: true})
	files, err := s.Collect(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, []string{"a/.gitignore", "a/keep.md", "b/tmp.md"}, relPaths(files))
}

func TestScanner_Collect_GitignoreDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "drafts/secret.md", "x")
	writeFile(t, root, ".gitignore", "drafts/\n")

	s := newScanner(t, Options{Extensions: []string{".md"}})
	files, err := s.Collect(context.Background(), root)

	require.NoError(t, err)
	assert.Equal(t, []string{"drafts/secret.md"}, relPaths(files))
}

func TestScanner_Collect_MultipleRootsDeduplicated(t *testing.T) {
	// Given: a root and a directory nested inside it
	root := t.TempDir()
	writeFile(t, root, "top.md", "top")
	writeFile(t, root, "inner/deep.md", "deep")

	s := newScanner(t, Options{})

	// When: both are collected
	files, err := s.Collect(context.Background(), root, filepath.Join(root, "inner"))

	// Then: the nested file appears once
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestScanner_Collect_RootErrors(t *testing.T) {
	s := newScanner(t, Options{})
	file := writeFile(t, t.TempDir(), "f.md", "x")

	_, err := s.Collect(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = s.Collect(context.Background(), file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestScanner_SkipsSymlinksUnlessFollowed(t *testing.T) {
	root := t.TempDir()
	target := writeFile(t, t.TempDir(), "outside.md", "outside")
	if err := os.Symlink(target, filepath.Join(root, "link.md")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	files, err := newScanner(t, Options{}).Collect(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = newScanner(t, Options{FollowSymlinks: true}).Collect(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"link.md"}, relPaths(files))
}

func TestScanner_Scan_Streams(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.md", "1")
	writeFile(t, root, "two.md", "2")

	results, err := newScanner(t, Options{}).Scan(context.Background(), root)
	require.NoError(t, err)

	var got []string
	for r := range results {
		require.NoError(t, r.Err)
		got = append(got, r.File.RelPath)
	}
	assert.ElementsMatch(t, []string{"one.md", "two.md"}, got)
}

func TestScanner_Scan_Cancelled(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("d", strings.Repeat("f", i+1)+".md"), "x")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newScanner(t, Options{}).Scan(ctx, root)
	require.NoError(t, err)

	for r := range results {
		assert.NoError(t, r.Err, "cancellation is not reported as an error")
	}
}

func TestScanner_CollectUnder_UsesRootRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.tmp\n")
	writeFile(t, root, "new/a.md", "a")
	writeFile(t, root, "new/b.tmp", "b")

	files, err := newScanner(t, Options{RespectGitignore: true}).CollectUnder(context.Background(), root, filepath.Join(root, "new"))

	require.NoError(t, err)
	assert.Equal(t, []string{"new/a.md"}, relPaths(files))
}

func TestScanner_Invalidate_ReloadsIgnoreFile(t *testing.T) {
	// Given: a scanner that has cached the root's ignore rules
	root := t.TempDir()
	path := writeFile(t, root, "draft.md", "x")
	s := newScanner(t, Options{RespectGitignore: true})
	require.True(t, s.AcceptFile(root, path))

	// When: the .gitignore changes
	writeFile(t, root, ".gitignore", "draft.md\n")

	// Then: the stale rules apply until invalidated
	assert.True(t, s.AcceptFile(root, path))
	s.Invalidate(root, root)
	assert.False(t, s.AcceptFile(root, path))
}

func TestScanner_AcceptFile(t *testing.T) {
	root := "/docs"
	s := newScanner(t, Options{Extensions: []string{".MD"}, ExcludeDirs: []string{".git"}})

	tests := []struct {
		path string
		want bool
	}{
		{"/docs/a.md", true},
		{"/docs/A.Md", true},
		{"/docs/a.txt", false},
		{"/docs/.git/HEAD.md", false},
		{"/elsewhere/a.md", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.AcceptFile(root, tt.path), tt.path)
	}
}

func TestOptions_MaxFileSizeDefault(t *testing.T) {
	assert.Equal(t, int64(DefaultMaxFileSize), newScanner(t, Options{}).MaxFileSize())
	assert.Equal(t, int64(5), newScanner(t, Options{MaxFileSize: 5}).MaxFileSize())
}
