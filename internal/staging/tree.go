// Package staging provides the append-only directory tree artifacts are
// written into before archiving.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
)

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// Tree is a rooted, append-only directory. A file path can be written once;
// a second write to the same path fails. Directories may be created any
// number of times. Tree is safe for concurrent use.
type Tree struct {
	dir  string
	root *os.Root

	mu      sync.Mutex
	files   map[string]int64
	dirs    map[string]bool
	ownsDir bool
}

// Open returns a tree rooted at an existing directory.
func Open(dir string) (*Tree, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, core.ErrIO(core.CodeStagingFailed, fmt.Sprintf("opening staging dir %s", dir)).WithCause(err)
	}
	return &Tree{
		dir:   dir,
		root:  root,
		files: make(map[string]int64),
		dirs:  make(map[string]bool),
	}, nil
}

// NewTemp creates a fresh temporary directory and returns a tree rooted at
// it. Remove deletes the directory.
func NewTemp(parent, pattern string) (*Tree, error) {
	dir, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return nil, core.ErrIO(core.CodeStagingFailed, "creating staging dir").WithCause(err)
	}
	t, err := Open(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	t.ownsDir = true
	return t, nil
}

// Dir returns the tree's root directory on disk.
func (t *Tree) Dir() string {
	return t.dir
}

// Mkdir creates the directory rel and any missing parents.
func (t *Tree) Mkdir(rel string) error {
	clean, err := cleanRel(rel)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mkdirLocked(clean)
}

func (t *Tree) mkdirLocked(clean string) error {
	if clean == "." || t.dirs[clean] {
		return nil
	}
	if _, isFile := t.files[clean]; isFile {
		return core.ErrState(core.CodeArtifactExists, fmt.Sprintf("%s is a file", clean))
	}
	if parent := path.Dir(clean); parent != "." {
		if err := t.mkdirLocked(parent); err != nil {
			return err
		}
	}
	if err := t.root.Mkdir(clean, dirPerm); err != nil && !errors.Is(err, fs.ErrExist) {
		return core.ErrIO(core.CodeStagingFailed, fmt.Sprintf("creating %s", clean)).WithCause(err)
	}
	t.dirs[clean] = true
	return nil
}

// WriteFile writes data to the file rel, creating parent directories.
// Writing a path that already exists fails with an ARTIFACT_EXISTS error.
func (t *Tree) WriteFile(rel string, data []byte) error {
	clean, err := cleanRel(rel)
	if err != nil {
		return err
	}
	if clean == "." {
		return core.ErrValidation(core.CodeInvalidPath, "artifact path is empty")
	}

	if err := t.claim(clean); err != nil {
		return err
	}

	f, err := t.root.OpenFile(clean, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return core.ErrState(core.CodeArtifactExists, fmt.Sprintf("%s already exists", clean)).WithCause(err)
		}
		return core.ErrIO(core.CodeStagingFailed, fmt.Sprintf("creating %s", clean)).WithCause(err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return core.ErrIO(core.CodeStagingFailed, fmt.Sprintf("writing %s", clean)).WithCause(err)
	}
	if err := f.Close(); err != nil {
		return core.ErrIO(core.CodeStagingFailed, fmt.Sprintf("closing %s", clean)).WithCause(err)
	}

	t.mu.Lock()
	t.files[clean] = int64(len(data))
	t.mu.Unlock()
	return nil
}

// WriteString writes s to the file rel.
func (t *Tree) WriteString(rel, s string) error {
	return t.WriteFile(rel, []byte(s))
}

// claim reserves a file path and makes sure its parent exists.
func (t *Tree) claim(clean string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.files[clean]; exists || t.dirs[clean] {
		return core.ErrState(core.CodeArtifactExists, fmt.Sprintf("%s already exists", clean))
	}
	if parent := path.Dir(clean); parent != "." {
		if err := t.mkdirLocked(parent); err != nil {
			return err
		}
	}
	// Size is filled in once the write completes.
	t.files[clean] = -1
	return nil
}

// Files returns the written file paths in lexical order.
func (t *Tree) Files() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.files))
	for f, size := range t.files {
		if size >= 0 {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// Close releases the tree's root handle.
func (t *Tree) Close() error {
	return t.root.Close()
}

// Remove closes the tree and deletes the directory if the tree created it.
func (t *Tree) Remove() error {
	_ = t.root.Close()
	if !t.ownsDir {
		return nil
	}
	return os.RemoveAll(t.dir)
}

// cleanRel normalizes a slash-separated relative path and rejects paths
// that are absolute or climb out of the tree.
func cleanRel(rel string) (string, error) {
	if rel == "" {
		return "", core.ErrValidation(core.CodeInvalidPath, "artifact path is empty")
	}
	if strings.ContainsRune(rel, '\\') || strings.ContainsRune(rel, 0) {
		return "", core.ErrValidation(core.CodeInvalidPath, fmt.Sprintf("invalid artifact path %q", rel))
	}
	if path.IsAbs(rel) {
		return "", core.ErrValidation(core.CodeInvalidPath, fmt.Sprintf("artifact path %q is absolute", rel))
	}
	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", core.ErrValidation(core.CodeInvalidPath, fmt.Sprintf("artifact path %q escapes the tree", rel))
	}
	return clean, nil
}
