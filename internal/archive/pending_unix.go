//go:build !windows

package archive

import (
	"github.com/google/renameio/v2"
)

type renameioPending struct {
	*renameio.PendingFile
}

// newPendingFile creates a temporary file next to path that atomically
// replaces path on Commit.
func newPendingFile(path string) (pendingFile, error) {
	f, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, err
	}
	return renameioPending{f}, nil
}

func (p renameioPending) Commit() error {
	return p.CloseAtomicallyReplace()
}
