package analyzer_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/rcliao/agent-notes/internal/analyzer"
	"github.com/rcliao/agent-notes/internal/config"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
)

func newAnalyzer(t *testing.T) *analyzer.Analyzer {
	t.Helper()
	a, err := analyzer.New(config.Default())
	gt.NoError(t, err).Required()
	return a
}

func doc(agent string, lines ...string) *model.NoteDocument {
	return &model.NoteDocument{Path: "notes.md", Agent: agent, Lines: lines}
}

func writeNote(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	gt.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func filler(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("progress line %d", i+1)
	}
	return lines
}

func TestNewRejectsBadPattern(t *testing.T) {
	cfg := config.Default()
	cfg.Patterns.Important = []string{"("}
	_, err := analyzer.New(cfg)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
}

func TestClassify(t *testing.T) {
	a := newAnalyzer(t)
	testCases := []struct {
		score model.Score
		want  model.Classification
	}{
		{model.Score{Value: 100}, model.ClassCritical},
		{model.Score{Value: 80}, model.ClassCritical},
		{model.Score{Value: 79}, model.ClassImportant},
		{model.Score{Value: 60}, model.ClassImportant},
		{model.Score{Value: 59}, model.ClassNormal},
		{model.Score{Value: 30}, model.ClassNormal},
		{model.Score{Value: 29}, model.ClassArchive},
		{model.Score{Value: 0}, model.ClassArchive},
		{model.Score{Value: 29, Temporary: true}, model.ClassTemporary},
		{model.Score{Value: 85, Temporary: true}, model.ClassImportant},
		{model.Score{Value: 45, Temporary: true}, model.ClassTemporary},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d/%v", tc.score.Value, tc.score.Temporary), func(t *testing.T) {
			gt.Equal(t, a.Classify(tc.score), tc.want)
		})
	}
}

func TestAnalyzeImportanceEmpty(t *testing.T) {
	a := newAnalyzer(t)
	gt.Equal(t, a.AnalyzeImportance(doc("planner")), model.Score{})
}

func TestAnalyzeImportanceClamped(t *testing.T) {
	a := newAnalyzer(t)
	lines := make([]string, 300)
	for i := range lines {
		lines[i] = "## CRITICAL urgent security decision: architecture must not regress"
	}
	score := a.AnalyzeImportance(doc("planner", lines...))

	gt.True(t, score.Value <= 100)
	gt.Number(t, score.Value).GreaterOrEqual(90)
	c := score.Components
	for _, v := range []int{c.Keyword, c.Recency, c.Format, c.Context, c.Frequency, c.Agent} {
		gt.Number(t, v).GreaterOrEqual(0)
		gt.True(t, v <= 100)
	}
	gt.Equal(t, c.Keyword, 100)
	gt.Equal(t, c.Agent, 100)
}

func TestAnalyzeImportanceSignalsRaiseScore(t *testing.T) {
	a := newAnalyzer(t)
	plain := a.AnalyzeImportance(doc("builder", filler(50)...))
	gt.Equal(t, plain.Value, 0)

	lines := filler(50)
	lines[45] = "CRITICAL: must not forget the migration"
	lines[46] = "- [ ] TODO: fix the flaky test"
	rich := a.AnalyzeImportance(doc("builder", lines...))
	gt.Number(t, rich.Value).Greater(plain.Value)
	gt.Number(t, rich.Components.Recency).Greater(80)
	gt.Number(t, rich.Components.Agent).Greater(0)
	gt.False(t, rich.Temporary)
}

func TestAgentWeighting(t *testing.T) {
	a := newAnalyzer(t)
	lines := []string{"the architecture needs a new design", "IMPORTANT: strategy review"}

	planner := a.AnalyzeImportance(doc("planner", lines...))
	builder := a.AnalyzeImportance(doc("builder", lines...))
	gt.Number(t, planner.Components.Agent).Greater(0)
	gt.Equal(t, builder.Components.Agent, 0)
	gt.Number(t, planner.Value).Greater(builder.Value)
}

func TestLineClassification(t *testing.T) {
	a := newAnalyzer(t)
	d := doc("",
		"plain text one",
		"CRITICAL: must not forget",
		"plain text two",
		"TODO: write tests",
		"plain text three",
		"- draft: critical idea",
		"plain text four",
	)

	got := map[int]model.Classification{}
	for line := range a.Lines(d) {
		got[line.Number] = line.Class
	}
	gt.Equal(t, got[2], model.ClassCritical)
	gt.Equal(t, got[4], model.ClassImportant)
	gt.Equal(t, got[6], model.ClassImportant)
	gt.Equal(t, got[1], model.ClassArchive)
}

func TestExtractCappedAndRestartable(t *testing.T) {
	a := newAnalyzer(t)
	lines := filler(20)
	for i := 0; i < 5; i++ {
		lines[i*3] = fmt.Sprintf("TODO: item %d", i)
	}
	d := doc("", lines...)

	seq := a.Extract(d, model.ClassImportant, 3)
	var first, second []int
	for line := range seq {
		first = append(first, line.Number)
	}
	for line := range seq {
		second = append(second, line.Number)
	}
	gt.A(t, first).Length(3)
	gt.Equal(t, first, second)
	gt.Equal(t, first, []int{1, 4, 7})

	var all int
	for range a.Extract(d, model.ClassImportant, 0) {
		all++
	}
	gt.Equal(t, all, 5)

	// Early break stops the scan without error.
	for line := range a.Extract(d, model.ClassImportant, 0) {
		gt.Equal(t, line.Number, 1)
		break
	}
}

func TestSummarize(t *testing.T) {
	a := newAnalyzer(t)
	d := doc("planner",
		"# Planner Notes",
		"## Current Work",
		"CRITICAL: must not forget",
		"- [x] sketch module layout",
		"- [ ] TODO: review the design",
		"- [ ] write the plan",
		"## Notes",
		"some context",
	)

	summary := a.Summarize(d)
	gt.S(t, summary).Contains("Total lines: 8")
	gt.S(t, summary).Contains("CRITICAL items: 1")
	gt.S(t, summary).Contains("Tasks: 1 completed, 2 pending")
	gt.S(t, summary).Contains("## CRITICAL (1)")
	gt.S(t, summary).Contains("- CRITICAL: must not forget")
	gt.S(t, summary).Contains("Importance score:")

	detailed := a.SummarizeDetailed(d)
	gt.S(t, detailed).Contains("L3: CRITICAL: must not forget")
	gt.S(t, detailed).Contains("## Score breakdown")
	gt.S(t, detailed).Contains("## Outline")
	gt.S(t, detailed).Contains("  - Current Work (L2-L6)")
}

func TestSummarizeNoTasks(t *testing.T) {
	a := newAnalyzer(t)
	summary := a.Summarize(doc("", "just text"))
	gt.S(t, summary).NotContains("Tasks:")
}

func TestCountPatterns(t *testing.T) {
	a := newAnalyzer(t)
	s := a.CountPatterns("", "CRITICAL: one\nIMPORTANT: two\nTODO three\nurgent and important\nnothing\n")
	gt.Equal(t, s.CriticalItems, 2)
	gt.Equal(t, s.ImportantItems, 2)
}

func TestCountPatternsMatchesSummaryTiers(t *testing.T) {
	a := newAnalyzer(t)
	content := "CRITICAL: draft plan for the cache\nprogress entry\nCRITICAL: never drop the table\n"

	s := a.CountPatterns("planner", content)
	gt.Equal(t, s.CriticalItems, 1)
	gt.Equal(t, s.ImportantItems, 1)

	r := a.Analyze(doc("planner", model.SplitLines(content)...), 0)
	gt.Equal(t, r.CriticalItems, s.CriticalItems)
	gt.Equal(t, r.ImportantItems, s.ImportantItems)
}

func TestSections(t *testing.T) {
	sections := analyzer.Sections([]string{
		"intro line",
		"# Title",
		"text",
		"## Sub",
		"more",
	})
	gt.A(t, sections).Length(3)
	gt.Equal(t, sections[0], analyzer.Section{Title: "", Level: 0, StartLine: 1, EndLine: 1})
	gt.Equal(t, sections[1], analyzer.Section{Title: "Title", Level: 1, StartLine: 2, EndLine: 3})
	gt.Equal(t, sections[2], analyzer.Section{Title: "Sub", Level: 2, StartLine: 4, EndLine: 5})
}

func TestAnalyzeFileMissing(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.With(context.Background(), logging.New("info", buf))
	a := newAnalyzer(t)

	score := a.AnalyzeFile(ctx, filepath.Join(t.TempDir(), "missing.md"), "planner")
	gt.Equal(t, score, model.Score{})
	gt.S(t, buf.String()).Contains("cannot analyze note")
}

func TestBatchAnalyze(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.With(context.Background(), logging.New("info", buf))
	a := newAnalyzer(t)
	dir := t.TempDir()

	low1 := writeNote(t, dir, "low1.md", filler(10))
	high := writeNote(t, dir, "high.md", []string{"# Plan", "CRITICAL: ship it", "TODO: tests", "- [ ] decision pending"})
	low2 := writeNote(t, dir, "low2.md", filler(10))
	missing := filepath.Join(dir, "missing.md")

	var reqs []analyzer.Request
	for _, p := range []string{low1, missing, high, low2} {
		reqs = append(reqs, analyzer.Request{Path: p, Agent: "builder"})
	}
	results := a.BatchAnalyze(ctx, reqs)
	gt.A(t, results).Length(3)
	gt.Equal(t, results[0].Path, high)
	gt.Equal(t, results[1].Path, low1)
	gt.Equal(t, results[2].Path, low2)
	gt.S(t, buf.String()).Contains("skipping unreadable note")
}

func TestBatchAnalyzeScoresEachAgent(t *testing.T) {
	a := newAnalyzer(t)
	dir := t.TempDir()
	lines := []string{"# Plan", "architecture review pending", "progress entry", "design notes for the roadmap"}
	planner := writeNote(t, dir, "planner.md", lines)
	builder := writeNote(t, dir, "builder.md", lines)

	results := a.BatchAnalyze(context.Background(), []analyzer.Request{
		{Path: planner, Agent: "planner"},
		{Path: builder, Agent: "builder"},
	})
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Path, planner)
	gt.Equal(t, results[0].Agent, "planner")
	gt.True(t, results[0].Score.Components.Agent > 0)
	gt.Equal(t, results[1].Score.Components.Agent, 0)
	gt.Equal(t, results[0].Score, a.AnalyzeFile(context.Background(), planner, "planner"))
}

func TestAnalyzeThousandLinesWithinBudget(t *testing.T) {
	a := newAnalyzer(t)
	lines := filler(1000)
	for i := 0; i < len(lines); i += 25 {
		lines[i] = "- [ ] TODO: IMPORTANT follow-up on the critical path"
	}
	d := doc("builder", lines...)

	start := time.Now()
	a.AnalyzeImportance(d)
	for range a.Lines(d) {
	}
	gt.True(t, time.Since(start) < time.Second)
}
