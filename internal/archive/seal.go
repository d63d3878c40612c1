// Package archive seals a staging tree into a gzip-compressed tar file.
package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
)

// Seal archives the contents of stagingRoot, not the directory itself, into
// destination. Entries are written in a directory-first lexical walk with
// the manifest last. The archive only appears at destination once it is
// complete; on error nothing is left behind.
func Seal(stagingRoot, destination string, opts SealOptions) (*Result, error) {
	if strings.TrimSpace(destination) == "" {
		return nil, core.ErrValidation(core.CodeInvalidPath, "archive destination is required")
	}
	info, err := os.Stat(stagingRoot)
	if err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "reading staging dir").WithCause(err)
	}
	if !info.IsDir() {
		return nil, core.ErrValidation(core.CodeInvalidPath, fmt.Sprintf("%s is not a directory", stagingRoot))
	}

	if err := os.MkdirAll(filepath.Dir(destination), 0o750); err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "creating output directory").WithCause(err)
	}

	pending, err := newPendingFile(destination)
	if err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "creating archive file").WithCause(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = pending.Cleanup()
		}
	}()

	manifest, err := writeArchive(pending, stagingRoot, opts)
	if err != nil {
		return nil, err
	}
	if err := pending.Commit(); err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "finalizing archive").WithCause(err)
	}
	committed = true

	result := &Result{Path: destination, Manifest: manifest}
	if st, err := os.Stat(destination); err == nil {
		result.Size = st.Size()
	}
	return result, nil
}

func writeArchive(w io.Writer, stagingRoot string, opts SealOptions) (*Manifest, error) {
	level := opts.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	gz, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "invalid compression level").WithCause(err)
	}
	tw := tar.NewWriter(gz)

	manifest := newManifest(opts)
	err = filepath.WalkDir(stagingRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == stagingRoot {
			return nil
		}
		rel, err := filepath.Rel(stagingRoot, p)
		if err != nil {
			return err
		}
		name, err := cleanArchivePath(filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return writeDirEntry(tw, name, d)
		case d.Type().IsRegular():
			if name == ManifestPath {
				return fmt.Errorf("staging tree already contains %s", ManifestPath)
			}
			entry, err := writeFileEntry(tw, name, p)
			if err != nil {
				return err
			}
			_, entry.Placeholder = opts.Placeholders[name]
			manifest.Files = append(manifest.Files, entry)
			return nil
		default:
			// Symlinks and devices are never staged.
			return nil
		}
	})
	if err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "archiving staging tree").WithCause(err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "encoding manifest").WithCause(err)
	}
	if err := writeTarEntry(tw, ManifestPath, data, 0o644); err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "writing manifest").WithCause(err)
	}

	if err := tw.Close(); err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "closing tar stream").WithCause(err)
	}
	if err := gz.Close(); err != nil {
		return nil, core.ErrIO(core.CodeArchiveFailed, "closing gzip stream").WithCause(err)
	}
	return manifest, nil
}

func newManifest(opts SealOptions) *Manifest {
	m := &Manifest{
		Version:     FormatVersion,
		RunID:       opts.RunID,
		CreatedAt:   time.Now().UTC(),
		ToolVersion: opts.ToolVersion,
		Controller:  opts.Controller,
		Cluster:     opts.Cluster,
		Partitions:  append([]string(nil), opts.Partitions...),
		StartedAt:   opts.StartedAt,
		FinishedAt:  opts.FinishedAt,
		Complete:    opts.Complete,
		Files:       make([]FileEntry, 0),
	}
	if len(opts.Placeholders) > 0 {
		m.Placeholders = make(map[string]string, len(opts.Placeholders))
		for k, v := range opts.Placeholders {
			m.Placeholders[k] = v
		}
	}
	return m
}

func writeDirEntry(tw *tar.Writer, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	return tw.WriteHeader(&tar.Header{
		Name:     name + "/",
		Mode:     0o755,
		ModTime:  info.ModTime(),
		Typeflag: tar.TypeDir,
	})
}

func writeFileEntry(tw *tar.Writer, name, src string) (FileEntry, error) {
	f, err := os.Open(src) // #nosec G304 -- path is discovered under the staging root
	if err != nil {
		return FileEntry{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, err
	}
	header := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return FileEntry{}, fmt.Errorf("writing archive entry %s: %w", name, err)
	}

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(tw, hash), f)
	if err != nil {
		return FileEntry{}, fmt.Errorf("writing archive entry %s: %w", name, err)
	}
	return FileEntry{
		Path:   name,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
		Size:   n,
	}, nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte, mode int64) error {
	header := &tar.Header{
		Name:     name,
		Mode:     mode,
		Size:     int64(len(data)),
		ModTime:  time.Now(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

// cleanArchivePath rejects names that would extract outside the target.
func cleanArchivePath(name string) (string, error) {
	clean := path.Clean(name)
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid archive path: %q", name)
	}
	return clean, nil
}
