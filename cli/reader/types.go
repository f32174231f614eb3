// Package reader provides the read-side data access layer for the strata
// CLI: archive listings, their summaries, and recorded progress journals.
//
// Read-only commands (list, stats, inspect, replay) go through this package
// so they render the same payloads whether output is json, table, yaml or
// the TUI.
package reader

import (
	"time"

	"github.com/pithecene-io/strata/types"
)

// FileRow is the flat table view of one archive entry.
type FileRow struct {
	Name       string    `json:"name" yaml:"name"`
	Size       int64     `json:"size" yaml:"size"`
	Compressed int64     `json:"compressed" yaml:"compressed"`
	Method     string    `json:"method" yaml:"method"`
	Attrs      string    `json:"attrs" yaml:"attrs"`
	Modified   time.Time `json:"modified" yaml:"modified"`
	Volume     string    `json:"volume" yaml:"volume"`
}

// VolumeStats summarizes the entries whose directory record sits in one volume.
type VolumeStats struct {
	Number     int    `json:"number" yaml:"number"`
	Name       string `json:"name" yaml:"name"`
	Files      int    `json:"files" yaml:"files"`
	Bytes      int64  `json:"bytes" yaml:"bytes"`
	Compressed int64  `json:"compressed" yaml:"compressed"`
}

// MethodStats counts entries per codec method.
type MethodStats struct {
	Method string `json:"method" yaml:"method"`
	Files  int    `json:"files" yaml:"files"`
	Bytes  int64  `json:"bytes" yaml:"bytes"`
}

// ArchiveStats summarizes an archive listing.
type ArchiveStats struct {
	Files           int           `json:"files" yaml:"files"`
	Volumes         int           `json:"volumes" yaml:"volumes"`
	TotalBytes      int64         `json:"total_bytes" yaml:"total_bytes"`
	CompressedBytes int64         `json:"compressed_bytes" yaml:"compressed_bytes"`
	Ratio           float64       `json:"ratio" yaml:"ratio"`
	Largest         string        `json:"largest,omitempty" yaml:"largest,omitempty"`
	Newest          *time.Time    `json:"newest,omitempty" yaml:"newest,omitempty"`
	PerVolume       []VolumeStats `json:"per_volume" yaml:"per_volume"`
	PerMethod       []MethodStats `json:"per_method" yaml:"per_method"`
}

// EntryDetail is the inspect view of a single entry.
type EntryDetail struct {
	types.ArchiveFileInfo `yaml:",inline"`
	Dir                   string  `json:"dir" yaml:"dir"`
	Ratio                 float64 `json:"ratio" yaml:"ratio"`
	Flags                 string  `json:"flags" yaml:"flags"`
}

// JournalSummary describes a replayed progress journal.
type JournalSummary struct {
	Events     int                        `json:"events" yaml:"events"`
	ByKind     map[types.ProgressKind]int `json:"by_kind" yaml:"by_kind"`
	Files      int                        `json:"files" yaml:"files"`
	Archives   int                        `json:"archives" yaml:"archives"`
	TotalBytes int64                      `json:"total_bytes" yaml:"total_bytes"`
	Processed  int64                      `json:"processed_bytes" yaml:"processed_bytes"`
	Complete   bool                       `json:"complete" yaml:"complete"`
	Compressed bool                       `json:"compressed" yaml:"compressed"`
}
