// Package analyzer scores note content for importance and extracts the
// lines worth keeping when a note is rotated.
package analyzer

import (
	"context"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/config"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

// Component weights, in percent.
const (
	weightKeyword   = 25
	weightRecency   = 20
	weightFormat    = 15
	weightContext   = 20
	weightFrequency = 10
	weightAgent     = 10
)

// contextRadius is the number of lines on each side of a line that count as
// its surrounding context.
const contextRadius = 3

var (
	headingRe  = regexp.MustCompile(`^\s{0,3}(#{1,6})\s+(.*)$`)
	checkboxRe = regexp.MustCompile(`^\s*[-*+]\s+\[([ xX])\]`)
	decisionRe = regexp.MustCompile(`(?i)\b(decision|decided|agreed|resolved|conclusion)\b|✅`)
)

// Analyzer scores and classifies note documents.
type Analyzer struct {
	thresholds config.Score
	budget     time.Duration

	critical  []*regexp.Regexp
	important []*regexp.Regexp
	temporary []*regexp.Regexp
	agents    map[string]*regexp.Regexp
}

// New compiles the configured pattern sets.
func New(cfg *config.Config) (*Analyzer, error) {
	a := &Analyzer{
		thresholds: cfg.Score,
		budget:     cfg.Analysis.Budget,
		agents:     map[string]*regexp.Regexp{},
	}

	var err error
	if a.critical, err = compileAll("patterns.critical", cfg.Patterns.Critical); err != nil {
		return nil, err
	}
	if a.important, err = compileAll("patterns.important", cfg.Patterns.Important); err != nil {
		return nil, err
	}
	if a.temporary, err = compileAll("patterns.temporary", cfg.Patterns.Temporary); err != nil {
		return nil, err
	}

	for agent, words := range cfg.Patterns.Agents {
		if len(words) == 0 {
			continue
		}
		quoted := make([]string, 0, len(words))
		for _, w := range words {
			quoted = append(quoted, regexp.QuoteMeta(strings.TrimSpace(w)))
		}
		re, err := regexp.Compile(`(?i)\b(` + strings.Join(quoted, "|") + `)`)
		if err != nil {
			return nil, goerr.Wrap(err, "compile agent keywords", goerr.V("agent", agent), goerr.T(model.ErrTagValidation))
		}
		a.agents[strings.ToLower(agent)] = re
	}

	return a, nil
}

func compileAll(name string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, goerr.Wrap(err, "compile pattern",
				goerr.V("set", name), goerr.V("pattern", p), goerr.T(model.ErrTagValidation))
		}
		out = append(out, re)
	}
	return out, nil
}

// LoadDocument reads a note from disk. A missing or unreadable file is a
// validation error.
func LoadDocument(path, agent string) (*model.NoteDocument, error) {
	if err := safety.FileReadable(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "read note", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}
	return &model.NoteDocument{
		Path:  path,
		Agent: agent,
		Lines: model.SplitLines(string(data)),
		Size:  int64(len(data)),
	}, nil
}

// AnalyzeFile scores the note at path. Unreadable input yields a zero score
// and a logged warning.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path, agent string) model.Score {
	doc, err := LoadDocument(path, agent)
	if err != nil {
		logging.From(ctx).Warn("cannot analyze note, scoring 0", "path", path, "error", err)
		return model.Score{}
	}
	timer := safety.StartTimer()
	score := a.AnalyzeImportance(doc)
	safety.CheckBudget(ctx, timer, a.budgetFor(doc.LineCount()), "analyze")
	return score
}

// budgetFor scales the per-1000-line budget to a document size.
func (a *Analyzer) budgetFor(lines int) time.Duration {
	if a.budget <= 0 {
		return 0
	}
	if lines <= 1000 {
		return a.budget
	}
	return time.Duration(int64(a.budget) * int64(lines) / 1000)
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
