package analyzer

import (
	"context"
	"slices"
	"time"

	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

// budgetCheckEvery is how many documents BatchAnalyze processes between
// budget checks.
const budgetCheckEvery = 10

// Result is one scored document of a batch.
type Result struct {
	Path  string               `json:"path"`
	Agent string               `json:"agent,omitempty"`
	Lines int                  `json:"lines"`
	Score model.Score          `json:"score"`
	Class model.Classification `json:"class"`
}

// Request names one document of a batch and the agent that owns it.
type Request struct {
	Path  string
	Agent string
}

// BatchAnalyze scores every readable document and returns them sorted by
// score, highest first. Ties keep input order. Unreadable documents are
// skipped with a warning. Time over budget is logged, never failed.
func (a *Analyzer) BatchAnalyze(ctx context.Context, reqs []Request) []Result {
	logger := logging.From(ctx)
	timer := safety.StartTimer()
	results := make([]Result, 0, len(reqs))
	totalLines := 0

	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			logger.Warn("batch analysis interrupted", "done", i, "total", len(reqs), "error", err)
			break
		}

		doc, err := LoadDocument(req.Path, req.Agent)
		if err != nil {
			logger.Warn("skipping unreadable note", "path", req.Path, "error", err)
			continue
		}
		score := a.AnalyzeImportance(doc)
		totalLines += doc.LineCount()
		results = append(results, Result{
			Path:  req.Path,
			Agent: req.Agent,
			Lines: doc.LineCount(),
			Score: score,
			Class: a.Classify(score),
		})

		if (i+1)%budgetCheckEvery == 0 {
			safety.CheckBudget(ctx, timer, a.budgetFor(totalLines), "batch analyze")
		}
	}
	safety.CheckBudget(ctx, timer, a.budgetFor(totalLines), "batch analyze")

	slices.SortStableFunc(results, func(x, y Result) int {
		return y.Score.Value - x.Score.Value
	})

	logger.Debug("batch analysis done",
		"documents", len(results), "skipped", len(reqs)-len(results),
		"elapsed", timer.Elapsed().Round(time.Microsecond))
	return results
}
