package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
)

func newTree(t *testing.T) *Tree {
	t.Helper()
	tree, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func TestTree_WriteFileCreatesParents(t *testing.T) {
	tree := newTree(t)

	require.NoError(t, tree.WriteString("default/pod/describe-mysql-0.txt", "Name: mysql-0"))

	data, err := os.ReadFile(filepath.Join(tree.Dir(), "default", "pod", "describe-mysql-0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Name: mysql-0", string(data))
	assert.Equal(t, []string{"default/pod/describe-mysql-0.txt"}, tree.Files())
}

func TestTree_AppendOnly(t *testing.T) {
	tree := newTree(t)

	require.NoError(t, tree.WriteString("default/bundle.yaml", "first"))
	err := tree.WriteString("default/bundle.yaml", "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, &core.DomainError{Category: core.ErrCatState, Code: core.CodeArtifactExists})

	data, err := os.ReadFile(filepath.Join(tree.Dir(), "default", "bundle.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestTree_PreexistingFileIsNotOverwritten(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("old"), 0o600))

	tree, err := Open(dir)
	require.NoError(t, err)
	defer tree.Close()

	err = tree.WriteString("stale.txt", "new")
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

func TestTree_MkdirIdempotent(t *testing.T) {
	tree := newTree(t)

	require.NoError(t, tree.Mkdir("controller-micro/pod"))
	require.NoError(t, tree.Mkdir("controller-micro/pod"))
	require.NoError(t, tree.Mkdir("controller-micro"))

	info, err := os.Stat(filepath.Join(tree.Dir(), "controller-micro", "pod"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Empty(t, tree.Files())
}

func TestTree_FileDirConflicts(t *testing.T) {
	tree := newTree(t)

	require.NoError(t, tree.WriteString("a", "x"))
	assert.Error(t, tree.Mkdir("a"))
	assert.Error(t, tree.WriteString("a/b", "x"))

	require.NoError(t, tree.Mkdir("d"))
	assert.Error(t, tree.WriteString("d", "x"))
}

func TestTree_RejectsEscapingPaths(t *testing.T) {
	tree := newTree(t)

	for _, rel := range []string{"", "/etc/passwd", "../outside", "a/../../b", `a\b`, "."} {
		err := tree.WriteString(rel, "x")
		require.Error(t, err, rel)
		assert.True(t, core.IsCategory(err, core.ErrCatValidation), rel)
	}
	assert.NoError(t, tree.WriteString("a/../b", "x"))
	assert.Equal(t, []string{"b"}, tree.Files())
}

func TestTree_ConcurrentDisjointWrites(t *testing.T) {
	tree := newTree(t)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				rel := fmt.Sprintf("ns-%d/pod/describe-pod-%d.txt", p, i)
				assert.NoError(t, tree.WriteString(rel, rel))
			}
		}(p)
	}
	wg.Wait()

	assert.Len(t, tree.Files(), 160)
}

func TestTree_ConcurrentSamePathWritesOnce(t *testing.T) {
	tree := newTree(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tree.WriteString("shared/file.txt", "x") == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestNewTemp_Remove(t *testing.T) {
	parent := t.TempDir()
	tree, err := NewTemp(parent, "crashdump-*")
	require.NoError(t, err)
	require.NoError(t, tree.WriteString("x/y.txt", "z"))

	dir := tree.Dir()
	require.NoError(t, tree.Remove())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, core.IsCategory(err, core.ErrCatIO))
}
