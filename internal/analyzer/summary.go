package analyzer

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rcliao/agent-notes/internal/model"
)

// previewLines is the number of excerpts per tier in a standard summary.
const previewLines = 5

// Tasks tallies checkbox items.
type Tasks struct {
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// Report is the structured form of a summary.
type Report struct {
	Path           string                                `json:"path"`
	Agent          string                                `json:"agent,omitempty"`
	TotalLines     int                                   `json:"total_lines"`
	Size           int64                                 `json:"size"`
	Score          model.Score                           `json:"score"`
	Class          model.Classification                  `json:"class"`
	CriticalItems  int                                   `json:"critical_items"`
	ImportantItems int                                   `json:"important_items"`
	Tasks          *Tasks                                `json:"tasks,omitempty"`
	Tiers          map[model.Classification]int          `json:"tiers"`
	Previews       map[model.Classification][]model.Line `json:"previews"`
}

// Analyze builds the structured report for doc. Previews hold up to
// maxPreview lines per tier (no cap when maxPreview <= 0).
func (a *Analyzer) Analyze(doc *model.NoteDocument, maxPreview int) *Report {
	score := a.AnalyzeImportance(doc)
	r := &Report{
		Path:       doc.Path,
		Agent:      doc.Agent,
		TotalLines: doc.LineCount(),
		Size:       doc.Size,
		Score:      score,
		Class:      a.Classify(score),
		Tiers:      map[model.Classification]int{},
		Previews:   map[model.Classification][]model.Line{},
	}

	for line := range a.Lines(doc) {
		r.Tiers[line.Class]++
		if maxPreview <= 0 || len(r.Previews[line.Class]) < maxPreview {
			r.Previews[line.Class] = append(r.Previews[line.Class], line)
		}
	}
	r.CriticalItems = r.Tiers[model.ClassCritical]
	r.ImportantItems = r.Tiers[model.ClassImportant]

	if tasks, ok := CountTasks(doc.Lines); ok {
		r.Tasks = &tasks
	}
	return r
}

// CountTasks tallies checkbox lines. ok is false when the note has none.
func CountTasks(lines []string) (Tasks, bool) {
	var t Tasks
	for _, line := range lines {
		m := checkboxRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[1] == " " {
			t.Pending++
		} else {
			t.Completed++
		}
	}
	return t, t.Completed+t.Pending > 0
}

// Summarize renders the standard summary: totals, score, tier counts, task
// tallies and a few excerpts per tier.
func (a *Analyzer) Summarize(doc *model.NoteDocument) string {
	r := a.Analyze(doc, previewLines)
	var b strings.Builder
	writeHeader(&b, "Notes Summary", r)
	for _, class := range []model.Classification{model.ClassCritical, model.ClassImportant, model.ClassNormal} {
		lines := r.Previews[class]
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", class, r.Tiers[class])
		for _, l := range lines {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(l.Text))
		}
		if more := r.Tiers[class] - len(lines); more > 0 {
			fmt.Fprintf(&b, "- ... %d more\n", more)
		}
	}
	return b.String()
}

// SummarizeDetailed renders every CRITICAL and IMPORTANT line with its line
// number, the score breakdown and the section outline.
func (a *Analyzer) SummarizeDetailed(doc *model.NoteDocument) string {
	r := a.Analyze(doc, 0)
	var b strings.Builder
	writeHeader(&b, "Detailed Notes Summary", r)

	c := r.Score.Components
	fmt.Fprintf(&b, "\n## Score breakdown\n\n")
	fmt.Fprintf(&b, "| keyword | recency | format | context | frequency | agent |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n",
		c.Keyword, c.Recency, c.Format, c.Context, c.Frequency, c.Agent)

	for _, class := range []model.Classification{model.ClassCritical, model.ClassImportant} {
		lines := r.Previews[class]
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", class, len(lines))
		for _, l := range lines {
			fmt.Fprintf(&b, "- L%d: %s\n", l.Number, strings.TrimSpace(l.Text))
		}
	}

	sections := Sections(doc.Lines)
	if len(sections) > 0 {
		fmt.Fprintf(&b, "\n## Outline\n\n")
		for _, s := range sections {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			indent := strings.Repeat("  ", max(s.Level-1, 0))
			fmt.Fprintf(&b, "%s- %s (L%d-L%d)\n", indent, title, s.StartLine, s.EndLine)
		}
	}
	return b.String()
}

func writeHeader(b *strings.Builder, title string, r *Report) {
	fmt.Fprintf(b, "# %s\n\n", title)
	if r.Agent != "" {
		fmt.Fprintf(b, "- Agent: %s\n", r.Agent)
	}
	if r.Path != "" {
		fmt.Fprintf(b, "- Source: %s\n", r.Path)
	}
	fmt.Fprintf(b, "- Total lines: %d\n", r.TotalLines)
	if r.Size > 0 {
		fmt.Fprintf(b, "- Size: %s\n", humanize.Bytes(uint64(r.Size)))
	}
	fmt.Fprintf(b, "- Importance score: %d/100 (%s)\n", r.Score.Value, r.Class)
	fmt.Fprintf(b, "- CRITICAL items: %d\n", r.CriticalItems)
	fmt.Fprintf(b, "- IMPORTANT items: %d\n", r.ImportantItems)
	if r.Tasks != nil {
		fmt.Fprintf(b, "- Tasks: %d completed, %d pending\n", r.Tasks.Completed, r.Tasks.Pending)
	}
}

// CountPatterns counts the lines of content that classify as CRITICAL and
// IMPORTANT for agent. These are the counts the summaries report, so the
// temporary penalty demotes a draft line here too.
func (a *Analyzer) CountPatterns(agent, content string) model.ContentSummary {
	tally := a.Tally(&model.NoteDocument{Agent: agent, Lines: model.SplitLines(content)})
	return model.ContentSummary{
		CriticalItems:  tally[model.ClassCritical],
		ImportantItems: tally[model.ClassImportant],
	}
}
