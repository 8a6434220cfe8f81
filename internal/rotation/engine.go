// Package rotation decides when a note has grown past its threshold and
// rotates it into the archive, rolling back on any failure.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/analyzer"
	"github.com/rcliao/agent-notes/internal/archive"
	"github.com/rcliao/agent-notes/internal/config"
	"github.com/rcliao/agent-notes/internal/index"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

// Trigger names what asked for a rotation. It selects the threshold.
type Trigger int

const (
	// TriggerMaintenance is a scheduled or manual check.
	TriggerMaintenance Trigger = iota
	// TriggerPersonaSwitch rotates early, before a persona hand-off.
	TriggerPersonaSwitch
)

func (t Trigger) String() string {
	if t == TriggerPersonaSwitch {
		return "persona_switch"
	}
	return "maintenance"
}

// MarshalText renders the trigger name in JSON and YAML output.
func (t Trigger) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseTrigger accepts "maintenance" or "persona_switch" (also "switch").
func ParseTrigger(s string) (Trigger, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "maintenance":
		return TriggerMaintenance, true
	case "persona_switch", "persona-switch", "switch":
		return TriggerPersonaSwitch, true
	default:
		return TriggerMaintenance, false
	}
}

// Status is the result of a threshold check.
type Status int

const (
	UnderThreshold Status = iota
	RotationNeeded
)

func (s Status) String() string {
	if s == RotationNeeded {
		return "rotation_needed"
	}
	return "under_threshold"
}

// MarshalText renders the status name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Check is the detail of a threshold check.
type Check struct {
	Path      string `json:"path" yaml:"path"`
	Status    Status `json:"status" yaml:"status"`
	Lines     int    `json:"lines" yaml:"lines"`
	Threshold int    `json:"threshold" yaml:"threshold"`
}

// Request identifies one note to rotate.
type Request struct {
	Path    string
	Agent   string
	Trigger Trigger
}

// Outcome is the result of one rotation attempt. Skipped marks a note that
// could not be checked, such as one that does not exist yet; Error holds the
// reason.
type Outcome struct {
	Path        string              `json:"path" yaml:"path"`
	Agent       string              `json:"agent" yaml:"agent"`
	Trigger     Trigger             `json:"trigger" yaml:"trigger"`
	Rotated     bool                `json:"rotated" yaml:"rotated"`
	Skipped     bool                `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	State       State               `json:"state" yaml:"state"`
	LinesBefore int                 `json:"lines_before" yaml:"lines_before"`
	LinesAfter  int                 `json:"lines_after" yaml:"lines_after"`
	Entry       *model.ArchiveEntry `json:"entry,omitempty" yaml:"entry,omitempty"`
	Error       string              `json:"error,omitempty" yaml:"error,omitempty"`
	Elapsed     time.Duration       `json:"elapsed_ns" yaml:"elapsed"`
}

// Recorder receives rotated notes for secondary indexing.
type Recorder interface {
	Record(ctx context.Context, entry model.ArchiveEntry, content string) error
}

// Engine rotates notes of any agent into one archive directory.
type Engine struct {
	cfg      *config.Config
	analyzer *analyzer.Analyzer
	index    *index.Manager
	archive  *archive.Store
	recorder Recorder
	now      func() time.Time

	// beforeIndex runs after the note is replaced and before the index is
	// updated. Tests use it to inject failures.
	beforeIndex func() error
}

// New builds an engine.
func New(cfg *config.Config, a *analyzer.Analyzer, idx *index.Manager, store *archive.Store) *Engine {
	return &Engine{
		cfg:      cfg,
		analyzer: a,
		index:    idx,
		archive:  store,
		now:      time.Now,
	}
}

// WithRecorder attaches a best-effort recorder called after each rotation.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

// CheckThreshold compares the note's line count with the trigger's
// threshold. A missing note is UnderThreshold with a validation error.
func (e *Engine) CheckThreshold(path string, trigger Trigger) (*Check, error) {
	c := &Check{
		Path:      path,
		Status:    UnderThreshold,
		Threshold: e.cfg.Rotation.Threshold(trigger == TriggerPersonaSwitch),
	}
	doc, err := analyzer.LoadDocument(path, "")
	if err != nil {
		return c, err
	}
	c.Lines = doc.LineCount()
	if c.Lines > c.Threshold {
		c.Status = RotationNeeded
	}
	return c, nil
}

// RotateIfNeeded rotates the note when it is over threshold and does nothing
// otherwise.
func (e *Engine) RotateIfNeeded(ctx context.Context, req Request) (*Outcome, error) {
	check, err := e.CheckThreshold(req.Path, req.Trigger)
	if err != nil {
		return &Outcome{
			Path: req.Path, Agent: req.Agent, Trigger: req.Trigger,
			State: StateMonitoring, Error: err.Error(),
			Skipped: goerr.HasTag(err, model.ErrTagValidation),
		}, err
	}
	if check.Status == UnderThreshold {
		logging.From(ctx).Debug("note under threshold",
			"path", req.Path, "lines", check.Lines, "threshold", check.Threshold)
		return &Outcome{
			Path: req.Path, Agent: req.Agent, Trigger: req.Trigger,
			State: StateMonitoring, LinesBefore: check.Lines, LinesAfter: check.Lines,
		}, nil
	}
	return e.PerformRotation(ctx, req)
}

// PerformRotation archives the note and replaces it with a fresh template.
// Every step after the backup is undone if a later step fails.
func (e *Engine) PerformRotation(ctx context.Context, req Request) (*Outcome, error) {
	logger := logging.From(ctx).With("path", req.Path, "agent", req.Agent)
	timer := safety.StartTimer()
	m := &machine{}
	out := &Outcome{Path: req.Path, Agent: req.Agent, Trigger: req.Trigger}
	defer func() {
		out.State = m.state
		out.Elapsed = timer.Elapsed()
	}()

	if err := safety.FileReadable(req.Path); err != nil {
		out.Error = err.Error()
		return out, err
	}
	seen, err := os.Stat(req.Path)
	if err != nil {
		err = goerr.Wrap(err, "stat note", goerr.V("path", req.Path), goerr.T(model.ErrTagValidation))
		out.Error = err.Error()
		return out, err
	}

	scope := safety.NewScope(ctx)
	defer scope.Close()

	if err := m.advance(StateThresholdExceeded); err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	// Everything below works from the backup, so what gets archived is
	// exactly what a rollback would restore.
	backup, err := scope.Backup(req.Path)
	if err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	raw, err := os.ReadFile(backup)
	if err != nil {
		err = goerr.Wrap(err, "read note backup", goerr.V("backup", backup), goerr.T(model.ErrTagResource))
		return out, e.fail(ctx, scope, m, out, err)
	}
	if int64(len(raw)) != seen.Size() {
		scope.Release(req.Path)
		return out, e.fail(ctx, scope, m, out, changedError(req.Path))
	}
	doc := &model.NoteDocument{
		Path:  req.Path,
		Agent: req.Agent,
		Lines: model.SplitLines(string(raw)),
		Size:  int64(len(raw)),
	}
	out.LinesBefore = doc.LineCount()

	// Extracting
	if err := m.advance(StateExtracting); err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	summary := e.analyzer.Summarize(doc)
	detailed := e.analyzer.SummarizeDetailed(doc)
	for line := range e.analyzer.Extract(doc, model.ClassCritical, 0) {
		if !strings.Contains(detailed, strings.TrimSpace(line.Text)) {
			err := goerr.New("critical line missing from summary",
				goerr.V("line", line.Number), goerr.T(model.ErrTagIntegrity))
			return out, e.fail(ctx, scope, m, out, err)
		}
	}

	// Archiving
	if err := m.advance(StateArchiving); err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	at := e.now()
	art, err := e.archive.Put(scope, req.Agent, at, raw)
	if err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	summaryRel, err := e.archive.PutSummary(scope, art.Rel, archive.SummarySuffix, summary)
	if err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	if _, err := e.archive.PutSummary(scope, art.Rel, archive.DetailedSuffix, detailed); err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}

	fresh := Template(req.Agent, at, doc.LineCount(), summaryRel)
	if err := unchanged(req.Path, seen); err != nil {
		// The note was not written; keep whatever is there now.
		scope.Release(req.Path)
		return out, e.fail(ctx, scope, m, out, err)
	}
	if err := safety.WriteAtomic(req.Path, []byte(fresh), notePerm(req.Path)); err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	if e.beforeIndex != nil {
		if err := e.beforeIndex(); err != nil {
			return out, e.fail(ctx, scope, m, out, err)
		}
	}

	// IndexUpdating
	if err := m.advance(StateIndexUpdating); err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	entry, err := e.index.AppendEntry(ctx, index.AppendParams{
		Agent:        req.Agent,
		ArchiveFile:  art.Rel,
		SummaryFile:  summaryRel,
		OriginalSize: art.OriginalSize,
		ArchivedSize: art.ArchivedSize,
		LineCount:    doc.LineCount(),
		Compression:  art.Compression,
		Content:      string(raw),
		Timestamp:    at,
	})
	if err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}

	if err := m.advance(StateCompleted); err != nil {
		return out, e.fail(ctx, scope, m, out, err)
	}
	if err := scope.Commit(); err != nil {
		// The rotation is durable; only backup cleanup failed.
		logger.Warn("rotation committed with leftover backups", "error", err)
	}

	out.Rotated = true
	out.Entry = entry
	out.LinesAfter = len(model.SplitLines(fresh))

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, *entry, string(raw)); err != nil {
			logger.Warn("catalog update failed, rebuild the catalog to resync", "id", entry.ID, "error", err)
		}
	}
	e.enforceMaxEntries(ctx)

	logger.Info("note rotated",
		"lines", out.LinesBefore, "archive", art.Rel,
		"critical", entry.ContentSummary.CriticalItems, "elapsed", timer.Elapsed())
	return out, nil
}

func (e *Engine) fail(ctx context.Context, scope *safety.Scope, m *machine, out *Outcome, cause error) error {
	failedIn := m.state
	m.rollback()
	return e.RecoverFromFailure(ctx, scope, failedIn, out, cause)
}

// RecoverFromFailure rolls an attempt back: the note is restored from its
// backup and files written by the attempt are removed. The index is never
// touched, since it is only written by the final step. The returned error
// carries the path, agent and the state the attempt failed in.
func (e *Engine) RecoverFromFailure(ctx context.Context, scope *safety.Scope, failedIn State, out *Outcome, cause error) error {
	err := goerr.Wrap(cause, "rotation failed",
		goerr.V("path", out.Path), goerr.V("agent", out.Agent), goerr.V("state", failedIn.String()))
	if rbErr := scope.Rollback(); rbErr != nil {
		err = goerr.Wrap(errors.Join(cause, rbErr), "rotation failed and rollback was incomplete",
			goerr.V("path", out.Path), goerr.V("agent", out.Agent), goerr.V("state", failedIn.String()),
			goerr.T(model.ErrTagResource))
	}

	logging.From(ctx).Error("rotation rolled back", "path", out.Path, "agent", out.Agent,
		"state", failedIn.String(), "error", err)
	out.Error = err.Error()
	return err
}

func (e *Engine) enforceMaxEntries(ctx context.Context) {
	limit := e.cfg.Archive.MaxEntries
	if limit <= 0 {
		return
	}
	if _, err := e.index.Cleanup(ctx, limit); err != nil {
		logging.From(ctx).Warn("index cleanup failed", "max_entries", limit, "error", err)
	}
}

// BatchRotate rotates each request independently, in order. A failure is
// recorded in its outcome and does not stop the batch.
func (e *Engine) BatchRotate(ctx context.Context, reqs []Request) []*Outcome {
	logger := logging.From(ctx)
	outcomes := make([]*Outcome, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			logger.Warn("batch rotation interrupted", "done", len(outcomes), "total", len(reqs), "error", err)
			break
		}
		out, err := e.RotateIfNeeded(ctx, req)
		if err != nil {
			if goerr.HasTag(err, model.ErrTagValidation) {
				logger.Warn("skipping note", "path", req.Path, "agent", req.Agent, "error", err)
			} else {
				logger.Error("rotation failed", "path", req.Path, "agent", req.Agent, "error", err)
			}
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// VerifyRotation checks the post-conditions of a rotation: the note exists
// and is within the maintenance threshold, the archive file exists and is
// not empty, and the index holds the entry.
func (e *Engine) VerifyRotation(ctx context.Context, path string, entry *model.ArchiveEntry) error {
	if entry == nil {
		return goerr.New("no archive entry to verify", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}

	check, err := e.CheckThreshold(path, TriggerMaintenance)
	if err != nil {
		return goerr.Wrap(err, "note missing after rotation", goerr.V("path", path), goerr.T(model.ErrTagIntegrity))
	}
	if check.Status != UnderThreshold {
		return goerr.New("note still over threshold",
			goerr.V("path", path), goerr.V("lines", check.Lines), goerr.V("threshold", check.Threshold),
			goerr.T(model.ErrTagIntegrity))
	}
	if _, ok := e.archive.Stat(entry.ArchiveFile); !ok {
		return goerr.New("archive file missing or empty",
			goerr.V("archive_file", entry.ArchiveFile), goerr.T(model.ErrTagIntegrity))
	}
	_, found, err := e.index.Find(ctx, entry.ID)
	if err != nil {
		return err
	}
	if !found {
		return goerr.New("entry missing from index", goerr.V("id", entry.ID), goerr.T(model.ErrTagIntegrity))
	}
	return nil
}

// StatusLine renders an outcome as one line of text.
func StatusLine(o *Outcome) string {
	switch {
	case o.Skipped:
		return fmt.Sprintf("SKIPPED %s (%s): %s", o.Path, o.Agent, o.Error)
	case o.Error != "":
		return fmt.Sprintf("FAILED  %s (%s): %s [%s]", o.Path, o.Agent, o.Error, o.State)
	case o.Rotated:
		return fmt.Sprintf("ROTATED %s (%s): %d -> %d lines, archived to %s",
			o.Path, o.Agent, o.LinesBefore, o.LinesAfter, o.Entry.ArchiveFile)
	default:
		return fmt.Sprintf("OK      %s (%s): %d lines, under threshold", o.Path, o.Agent, o.LinesBefore)
	}
}

// unchanged reports an error when path no longer has the size and
// modification time recorded in seen.
func unchanged(path string, seen os.FileInfo) error {
	now, err := os.Stat(path)
	if err != nil {
		return goerr.Wrap(err, "note disappeared during rotation", goerr.V("path", path), goerr.T(model.ErrTagIntegrity))
	}
	if now.Size() != seen.Size() || !now.ModTime().Equal(seen.ModTime()) {
		return changedError(path)
	}
	return nil
}

func changedError(path string) error {
	return goerr.New("note changed during rotation", goerr.V("path", path), goerr.T(model.ErrTagIntegrity))
}

func notePerm(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
