// Package model defines the note, scoring and archive types shared by the
// analyzer, index and rotation packages.
package model

import "strings"

// NoteDocument is an append-growing note file owned by one agent.
type NoteDocument struct {
	Path  string   `json:"path"`
	Agent string   `json:"agent"`
	Lines []string `json:"-"`
	Size  int64    `json:"size"`
}

// LineCount returns the number of lines in the document.
func (d *NoteDocument) LineCount() int {
	if d == nil {
		return 0
	}
	return len(d.Lines)
}

// Content joins the lines back into file content.
func (d *NoteDocument) Content() string {
	if d == nil || len(d.Lines) == 0 {
		return ""
	}
	return strings.Join(d.Lines, "\n") + "\n"
}

// SplitLines splits file content into lines. A trailing newline does not
// produce an extra empty line, and empty content has zero lines.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// Classification is the discrete importance tier of content.
type Classification string

const (
	ClassCritical  Classification = "CRITICAL"
	ClassImportant Classification = "IMPORTANT"
	ClassNormal    Classification = "NORMAL"
	ClassArchive   Classification = "ARCHIVE"
	ClassTemporary Classification = "TEMPORARY"
)

// Classifications lists tiers from most to least important.
var Classifications = []Classification{
	ClassCritical,
	ClassImportant,
	ClassNormal,
	ClassArchive,
	ClassTemporary,
}

// ParseClassification accepts a tier name in any case.
func ParseClassification(s string) (Classification, bool) {
	c := Classification(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Classifications {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// Components holds the per-factor sub-scores, each on a 0-100 scale.
type Components struct {
	Keyword   int `json:"keyword"`
	Recency   int `json:"recency"`
	Format    int `json:"format"`
	Context   int `json:"context"`
	Frequency int `json:"frequency"`
	Agent     int `json:"agent"`
}

// Score is an importance score for a document or a line window.
type Score struct {
	Value      int        `json:"value"`
	Components Components `json:"components"`
	// Temporary is set when draft/temporary markers were found.
	Temporary bool `json:"temporary"`
}

// Line is one classified line of a note.
type Line struct {
	Number int            `json:"number"`
	Text   string         `json:"text"`
	Class  Classification `json:"class"`
	Score  int            `json:"score"`
}
