package archive

import "io"

// pendingFile is an output file that only becomes visible at its final
// path on Commit.
type pendingFile interface {
	io.Writer
	Commit() error
	Cleanup() error
}
