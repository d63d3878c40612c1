package collector

import (
	"sort"
	"sync"
	"time"
)

// Placeholder is an artifact that holds the error that prevented its
// collection instead of collected output.
type Placeholder struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Report summarizes one collection run.
type Report struct {
	Controller   string        `json:"controller"`
	Partitions   []Partition   `json:"partitions"`
	Artifacts    int           `json:"artifacts"`
	Placeholders []Placeholder `json:"placeholders,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Complete     bool          `json:"complete"`
}

// reportBuilder accumulates report data from concurrent workers.
type reportBuilder struct {
	mu           sync.Mutex
	artifacts    int
	placeholders []Placeholder
}

func (b *reportBuilder) artifact(placeholder *Placeholder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.artifacts++
	if placeholder != nil {
		b.placeholders = append(b.placeholders, *placeholder)
	}
}

func (b *reportBuilder) fill(r *Report) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r.Artifacts = b.artifacts
	r.Placeholders = append([]Placeholder(nil), b.placeholders...)
	sort.Slice(r.Placeholders, func(i, j int) bool {
		return r.Placeholders[i].Path < r.Placeholders[j].Path
	})
}
