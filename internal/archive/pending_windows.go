//go:build windows

package archive

import (
	"os"
	"path/filepath"
)

type tempPending struct {
	*os.File
	target string
}

// newPendingFile creates a temporary file in the same directory as path.
// renameio does not support Windows, so Commit closes and renames it.
func newPendingFile(path string) (pendingFile, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &tempPending{File: f, target: path}, nil
}

func (p *tempPending) Commit() error {
	if err := p.File.Close(); err != nil {
		return err
	}
	return os.Rename(p.File.Name(), p.target)
}

func (p *tempPending) Cleanup() error {
	_ = p.File.Close()
	return os.Remove(p.File.Name())
}
