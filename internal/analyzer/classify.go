package analyzer

import (
	"iter"

	"github.com/rcliao/agent-notes/internal/model"
)

// Classify maps a score to a tier using the configured cut points. The
// temporary penalty is applied first and may demote the tier.
func (a *Analyzer) Classify(score model.Score) model.Classification {
	v := score.Value
	if score.Temporary {
		v -= a.thresholds.TemporaryPenalty
	}
	switch {
	case v >= a.thresholds.Critical:
		return model.ClassCritical
	case v >= a.thresholds.Important:
		return model.ClassImportant
	case v >= a.thresholds.Normal:
		return model.ClassNormal
	case score.Temporary:
		return model.ClassTemporary
	default:
		return model.ClassArchive
	}
}

// Lines classifies every non-blank line of doc.
func (a *Analyzer) Lines(doc *model.NoteDocument) iter.Seq[model.Line] {
	return func(yield func(model.Line) bool) {
		if doc.LineCount() == 0 {
			return
		}
		sc := a.scan(doc)
		for i, text := range doc.Lines {
			if sc.lines[i].blank {
				continue
			}
			score := a.scoreLine(sc, i)
			line := model.Line{
				Number: i + 1,
				Text:   text,
				Class:  a.Classify(score),
				Score:  score.Value,
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Extract yields up to maxLines lines of the given class, in document order.
// The sequence is finite and can be ranged over again; each range re-scans
// the document. maxLines <= 0 means no cap.
func (a *Analyzer) Extract(doc *model.NoteDocument, class model.Classification, maxLines int) iter.Seq[model.Line] {
	return func(yield func(model.Line) bool) {
		emitted := 0
		for line := range a.Lines(doc) {
			if line.Class != class {
				continue
			}
			if maxLines > 0 && emitted >= maxLines {
				return
			}
			emitted++
			if !yield(line) {
				return
			}
		}
	}
}

// Tally counts classified lines per tier.
func (a *Analyzer) Tally(doc *model.NoteDocument) map[model.Classification]int {
	out := make(map[model.Classification]int, len(model.Classifications))
	for line := range a.Lines(doc) {
		out[line.Class]++
	}
	return out
}
