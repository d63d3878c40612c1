package testutil

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ErrTest is a generic test error.
var ErrTest = errors.New("test error")

// TempFile creates a file with content under dir.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

// KubeconfigYAML is a minimal kubeconfig pointing at a local API server.
const KubeconfigYAML = `apiVersion: v1
kind: Config
clusters:
- name: microk8s-cluster
  cluster:
    server: https://127.0.0.1:16443
    insecure-skip-tls-verify: true
contexts:
- name: microk8s
  context:
    cluster: microk8s-cluster
    user: admin
current-context: microk8s
users:
- name: admin
  user:
    token: test-token
`

// WriteKubeconfig writes KubeconfigYAML to a file in a temp dir.
func WriteKubeconfig(t *testing.T) string {
	t.Helper()
	return TempFile(t, t.TempDir(), "kubeconfig", KubeconfigYAML)
}

// ArchiveEntry is one member of a tar.gz archive.
type ArchiveEntry struct {
	Name string
	Dir  bool
	Body string
}

// Archive is the decoded content of a tar.gz file, in stream order.
type Archive struct {
	Entries []ArchiveEntry
}

// Names returns entry names in stream order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		names = append(names, e.Name)
	}
	return names
}

// File returns the body of a regular file entry.
func (a *Archive) File(name string) (string, bool) {
	for _, e := range a.Entries {
		if !e.Dir && e.Name == name {
			return e.Body, true
		}
	}
	return "", false
}

// Files returns the names of regular file entries in stream order.
func (a *Archive) Files() []string {
	var names []string
	for _, e := range a.Entries {
		if !e.Dir {
			names = append(names, e.Name)
		}
	}
	return names
}

// ReadArchive decodes a tar.gz file with the standard library readers.
func ReadArchive(t *testing.T, path string) *Archive {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("reading gzip header: %v", err)
	}
	defer gz.Close()

	out := &Archive{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("reading tar entry: %v", err)
		}
		entry := ArchiveEntry{Name: hdr.Name}
		if hdr.Typeflag == tar.TypeDir {
			entry.Dir = true
			entry.Name = strings.TrimSuffix(hdr.Name, "/")
		} else {
			body, err := io.ReadAll(tr)
			if err != nil {
				t.Fatalf("reading %s: %v", hdr.Name, err)
			}
			entry.Body = string(body)
		}
		out.Entries = append(out.Entries, entry)
	}
	return out
}
