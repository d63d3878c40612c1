package archive

import (
	"time"
)

const (
	// FormatVersion is the current manifest format version.
	FormatVersion = 1

	// ManifestPath is where the manifest is stored inside the archive.
	ManifestPath = "_crashdump/manifest.json"
)

// FileEntry describes one archived file.
type FileEntry struct {
	Path        string `json:"path"`
	SHA256      string `json:"sha256"`
	Size        int64  `json:"size"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

// ClusterInfo identifies the cluster the archive was collected from.
type ClusterInfo struct {
	Context string `json:"context,omitempty"`
	Cluster string `json:"cluster,omitempty"`
	Server  string `json:"server,omitempty"`
}

// Manifest is the metadata file stored last in every archive.
type Manifest struct {
	Version      int               `json:"version"`
	RunID        string            `json:"run_id"`
	CreatedAt    time.Time         `json:"created_at"`
	ToolVersion  string            `json:"tool_version,omitempty"`
	Controller   string            `json:"controller"`
	Cluster      ClusterInfo       `json:"cluster"`
	Partitions   []string          `json:"partitions"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Complete     bool              `json:"complete"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
	Files        []FileEntry       `json:"files"`
}

// SealOptions carries the run metadata recorded in the manifest.
type SealOptions struct {
	RunID       string
	ToolVersion string
	Controller  string
	Cluster     ClusterInfo
	Partitions  []string
	StartedAt   time.Time
	FinishedAt  time.Time
	Complete    bool
	// Placeholders maps archive paths to the error recorded in them.
	Placeholders map[string]string
	// Level is the gzip compression level; zero selects the default.
	Level int
}

// Result describes a sealed archive.
type Result struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Manifest *Manifest `json:"manifest"`
}
