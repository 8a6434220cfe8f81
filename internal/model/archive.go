package model

import "time"

// IndexVersion is written to new archive indexes.
const IndexVersion = "1.0"

// ContentSummary counts the high-value lines of an archived note.
type ContentSummary struct {
	CriticalItems  int `json:"critical_items" yaml:"critical_items"`
	ImportantItems int `json:"important_items" yaml:"important_items"`
}

// ArchiveEntry is the metadata of one rotation.
type ArchiveEntry struct {
	ID             string         `json:"id" yaml:"id"`
	Timestamp      time.Time      `json:"timestamp" yaml:"timestamp"`
	Agent          string         `json:"agent" yaml:"agent"`
	OriginalSize   int64          `json:"original_size" yaml:"original_size"`
	ArchivedSize   int64          `json:"archived_size" yaml:"archived_size"`
	ArchiveFile    string         `json:"archive_file" yaml:"archive_file"`
	SummaryFile    string         `json:"summary_file,omitempty" yaml:"summary_file,omitempty"`
	LineCount      int            `json:"line_count,omitempty" yaml:"line_count,omitempty"`
	Compression    string         `json:"compression,omitempty" yaml:"compression,omitempty"`
	ContentSummary ContentSummary `json:"content_summary" yaml:"content_summary"`
	Keywords       []string       `json:"keywords" yaml:"keywords"`
}

// IndexMetadata describes the index document itself.
type IndexMetadata struct {
	Version string    `json:"version" yaml:"version"`
	Created time.Time `json:"created" yaml:"created"`
}

// ArchiveIndex is the persisted collection of archive entries.
type ArchiveIndex struct {
	Archives []ArchiveEntry `json:"archives" yaml:"archives"`
	Metadata IndexMetadata  `json:"metadata" yaml:"metadata"`
}

// NewArchiveIndex returns an empty index created at the given time.
func NewArchiveIndex(created time.Time) *ArchiveIndex {
	return &ArchiveIndex{
		Archives: []ArchiveEntry{},
		Metadata: IndexMetadata{Version: IndexVersion, Created: created.UTC()},
	}
}
