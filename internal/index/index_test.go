package index_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/rcliao/agent-notes/internal/analyzer"
	"github.com/rcliao/agent-notes/internal/config"
	"github.com/rcliao/agent-notes/internal/index"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var backends = []string{config.BackendStructured, config.BackendTextual}

func newManager(t *testing.T, dir, backend string) *index.Manager {
	t.Helper()
	a, err := analyzer.New(config.Default())
	gt.NoError(t, err).Required()
	m, err := index.NewManager(context.Background(), dir, backend, a)
	gt.NoError(t, err).Required()
	gt.NoError(t, m.Init(context.Background())).Required()
	return m
}

func appendN(t *testing.T, m *index.Manager, n int, offsets ...int) []*model.ArchiveEntry {
	t.Helper()
	var out []*model.ArchiveEntry
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		if i < len(offsets) {
			at = base.Add(time.Duration(offsets[i]) * time.Hour)
		}
		e, err := m.AppendEntry(context.Background(), index.AppendParams{
			Agent:        "planner",
			ArchiveFile:  fmt.Sprintf("2025-03/planner-notes-%02d.md", i),
			OriginalSize: 1000,
			ArchivedSize: 400,
			LineCount:    520,
			Content:      "CRITICAL: must not forget\nTODO: fix the bug\n",
			Timestamp:    at,
		})
		gt.NoError(t, err).Required()
		out = append(out, e)
	}
	return out
}

func TestInitIdempotent(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			m := newManager(t, dir, backend)
			first, err := os.ReadFile(m.Path())
			gt.NoError(t, err).Required()

			gt.NoError(t, m.Init(context.Background()))
			second, err := os.ReadFile(m.Path())
			gt.NoError(t, err).Required()
			gt.Equal(t, string(first), string(second))

			var idx model.ArchiveIndex
			gt.NoError(t, json.Unmarshal(first, &idx))
			gt.Equal(t, idx.Metadata.Version, model.IndexVersion)
			gt.A(t, idx.Archives).Length(0)
		})
	}
}

func TestAppendCount(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			m := newManager(t, t.TempDir(), backend)
			entries := appendN(t, m, 5)

			n, err := m.Count(ctx)
			gt.NoError(t, err)
			gt.Equal(t, n, 5)

			ids := map[string]bool{}
			for _, e := range entries {
				ids[e.ID] = true
			}
			gt.Equal(t, len(ids), 5)

			stored, err := m.Entries(ctx)
			gt.NoError(t, err).Required()
			gt.Equal(t, stored[0].Keywords, []string{"critical", "todo", "bug", "fix"})
			gt.Equal(t, stored[0].ContentSummary, model.ContentSummary{CriticalItems: 1, ImportantItems: 1})
			gt.Equal(t, stored[4].ArchiveFile, "2025-03/planner-notes-04.md")
		})
	}
}

func TestAppendRequiresArchiveFile(t *testing.T) {
	m := newManager(t, t.TempDir(), config.BackendAuto)
	_, err := m.AppendEntry(context.Background(), index.AppendParams{Agent: "planner"})
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
}

func TestCleanupKeepsMostRecent(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			m := newManager(t, t.TempDir(), backend)
			entries := appendN(t, m, 6, 5, 0, 3, 1, 4, 2)

			removed, err := m.Cleanup(ctx, 10)
			gt.NoError(t, err)
			gt.Equal(t, removed, 0)

			removed, err = m.Cleanup(ctx, 3)
			gt.NoError(t, err)
			gt.Equal(t, removed, 3)

			kept, err := m.Entries(ctx)
			gt.NoError(t, err).Required()
			gt.A(t, kept).Length(3)
			// Offsets 3, 4, 5 hours were appended at positions 2, 4, 0.
			gt.Equal(t, kept[0].ID, entries[2].ID)
			gt.Equal(t, kept[1].ID, entries[4].ID)
			gt.Equal(t, kept[2].ID, entries[0].ID)
		})
	}
}

func TestOptimize(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			m := newManager(t, t.TempDir(), backend)
			appendN(t, m, 3, 2, 0, 1)
			_, err := m.AppendEntry(ctx, index.AppendParams{
				Agent:       "planner",
				ArchiveFile: "2025-03/planner-notes-00.md",
				Timestamp:   base.Add(10 * time.Hour),
			})
			gt.NoError(t, err).Required()

			res, err := m.Optimize(ctx)
			gt.NoError(t, err).Required()
			gt.Equal(t, *res, index.OptimizeResult{Before: 4, After: 3, Duplicates: 1})

			entries, err := m.Entries(ctx)
			gt.NoError(t, err).Required()
			gt.Equal(t, entries[0].ArchiveFile, "2025-03/planner-notes-01.md")
			gt.Equal(t, entries[1].ArchiveFile, "2025-03/planner-notes-02.md")
			gt.Equal(t, entries[2].ArchiveFile, "2025-03/planner-notes-00.md")
			gt.True(t, entries[2].Timestamp.Equal(base.Add(2*time.Hour)))
		})
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir(), config.BackendAuto)
	appendN(t, m, 2)
	_, err := m.AppendEntry(ctx, index.AppendParams{
		Agent:       "builder",
		ArchiveFile: "2025-03/builder-notes.md",
		Content:     "security review done\n",
		Timestamp:   base,
	})
	gt.NoError(t, err).Required()

	results, err := m.Search(ctx, "SECURITY")
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Agent, "builder")
	gt.Equal(t, results[0].Keywords, []string{"done", "security"})

	results, err = m.Search(ctx, "Crit")
	gt.NoError(t, err)
	gt.A(t, results).Length(2)

	results, err = m.Search(ctx, "performance")
	gt.NoError(t, err)
	gt.A(t, results).Length(0)

	_, err = m.Search(ctx, "  ")
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, t.TempDir(), config.BackendAuto)
	appendN(t, m, 3)

	st, err := m.Stats(ctx)
	gt.NoError(t, err).Required()
	gt.Equal(t, st.Entries, 3)
	gt.Equal(t, st.Backend, "structured")
	gt.Equal(t, st.OriginalBytes, int64(3000))
	gt.Equal(t, st.ArchivedBytes, int64(1200))
	gt.Equal(t, st.Agents["planner"], 3)
	gt.True(t, st.Oldest.Equal(base))
	gt.True(t, st.Newest.Equal(base.Add(2*time.Hour)))
	gt.Number(t, st.IndexSize).Greater(0)
	gt.A(t, st.TopKeywords).Length(4)
	gt.Equal(t, st.TopKeywords[0], index.KeywordCount{Keyword: "bug", Count: 3})
}

func TestVerifyIntegrity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := newManager(t, dir, config.BackendAuto)
	appendN(t, m, 3)

	for _, name := range []string{"planner-notes-00.md", "planner-notes-02.md"} {
		path := filepath.Join(dir, "2025-03", name)
		gt.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		gt.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))
	}

	report := m.VerifyIntegrity(ctx)
	gt.Equal(t, report.Total, 3)
	gt.Equal(t, report.Missing, 1)
	gt.Equal(t, report.Files, []string{"2025-03/planner-notes-01.md"})
	gt.False(t, report.OK())
}

func TestVerifyIntegrityCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir, config.BackendStructured)
	gt.NoError(t, os.WriteFile(m.Path(), []byte("{oops"), 0o644))

	report := m.VerifyIntegrity(context.Background())
	gt.S(t, report.Error).Contains("well-formed")
	gt.False(t, report.OK())
}

func TestCorruptIndexAppendLeavesFile(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			m := newManager(t, dir, backend)
			corrupt := []byte(`{"archives": [ {"id": "a"`)
			gt.NoError(t, os.WriteFile(m.Path(), corrupt, 0o644))

			_, err := m.AppendEntry(context.Background(), index.AppendParams{
				Agent:       "planner",
				ArchiveFile: "2025-03/x.md",
			})
			gt.Error(t, err)
			gt.True(t, goerr.HasTag(err, model.ErrTagIntegrity))

			after, err := os.ReadFile(m.Path())
			gt.NoError(t, err)
			gt.Equal(t, string(after), string(corrupt))

			leftovers, err := filepath.Glob(filepath.Join(dir, ".index.json*"))
			gt.NoError(t, err)
			gt.A(t, leftovers).Length(0)
		})
	}
}

func TestInvalidWriteRestoresIndex(t *testing.T) {
	writers := map[string]func(path string, data []byte, perm fs.FileMode) error{
		"truncated": func(path string, data []byte, perm fs.FileMode) error {
			return safety.WriteAtomic(path, data[:len(data)/2], perm)
		},
		"wrong count": func(path string, data []byte, perm fs.FileMode) error {
			return safety.WriteAtomic(path, []byte(`{"archives": [], "metadata": {"version": "1.0"}}`), perm)
		},
	}
	ops := map[string]func(m *index.Manager) error{
		"append": func(m *index.Manager) error {
			_, err := m.AppendEntry(context.Background(), index.AppendParams{
				Agent:       "planner",
				ArchiveFile: "2025-03/planner-notes-new.md",
				Content:     "CRITICAL: keep\n",
			})
			return err
		},
		"rewrite": func(m *index.Manager) error {
			_, err := m.Cleanup(context.Background(), 1)
			return err
		},
	}

	for _, backend := range backends {
		for wname, write := range writers {
			for oname, op := range ops {
				t.Run(backend+"/"+wname+"/"+oname, func(t *testing.T) {
					dir := t.TempDir()
					m := newManager(t, dir, backend)
					appendN(t, m, 2)
					before, err := os.ReadFile(m.Path())
					gt.NoError(t, err).Required()

					restore := index.SetWriteFile(write)
					err = op(m)
					restore()
					gt.Error(t, err)
					gt.True(t, goerr.HasTag(err, model.ErrTagIntegrity))

					after, err := os.ReadFile(m.Path())
					gt.NoError(t, err)
					gt.Equal(t, string(after), string(before))

					leftovers, err := filepath.Glob(filepath.Join(dir, ".index.json*"))
					gt.NoError(t, err)
					gt.A(t, leftovers).Length(0)

					n, err := m.Count(context.Background())
					gt.NoError(t, err)
					gt.Equal(t, n, 2)
				})
			}
		}
	}
}

func TestFailedAppendRemovesNewIndex(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			a, err := analyzer.New(config.Default())
			gt.NoError(t, err).Required()
			m, err := index.NewManager(context.Background(), dir, backend, a)
			gt.NoError(t, err).Required()

			restore := index.SetWriteFile(func(path string, data []byte, perm fs.FileMode) error {
				return errors.New("disk full")
			})
			_, err = m.AppendEntry(context.Background(), index.AppendParams{
				Agent:       "planner",
				ArchiveFile: "2025-03/planner-notes-x.md",
			})
			restore()
			gt.Error(t, err)

			_, statErr := os.Stat(m.Path())
			gt.True(t, os.IsNotExist(statErr))
			leftovers, err := filepath.Glob(filepath.Join(dir, ".index.json*"))
			gt.NoError(t, err)
			gt.A(t, leftovers).Length(0)
		})
	}
}

const foreignIndex = `{
  "owner": "ops-team",
  "archives": [
    {
      "id": "01HQXYZ",
      "timestamp": "2025-02-01T10:00:00Z",
      "agent": "planner",
      "original_size": 10,
      "archived_size": 10,
      "archive_file": "2025-02/planner-notes-old.md",
      "content_summary": {"critical_items": 0, "important_items": 0},
      "keywords": [],
      "reviewed_by": "alice"
    }
  ],
  "metadata": {"version": "1.0", "created": "2025-02-01T10:00:00Z", "source": "legacy"}
}
`

func TestAutoSelectsTextualAndPreservesForeignFields(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, index.FileName), []byte(foreignIndex), 0o644))

	m := newManager(t, dir, config.BackendAuto)
	gt.Equal(t, m.Backend(), "textual")

	appendN(t, m, 1)
	n, err := m.Count(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 2)

	_, err = m.Optimize(ctx)
	gt.NoError(t, err).Required()

	data, err := os.ReadFile(m.Path())
	gt.NoError(t, err).Required()
	gt.True(t, json.Valid(data))
	gt.S(t, string(data)).Contains(`"owner": "ops-team"`)
	gt.S(t, string(data)).Contains(`"reviewed_by": "alice"`)
	gt.S(t, string(data)).Contains(`"source": "legacy"`)

	removed, err := m.Cleanup(ctx, 1)
	gt.NoError(t, err)
	gt.Equal(t, removed, 1)
	data, err = os.ReadFile(m.Path())
	gt.NoError(t, err).Required()
	gt.S(t, string(data)).NotContains("reviewed_by")
	gt.S(t, string(data)).Contains(`"owner": "ops-team"`)
}

func TestAutoSelectsStructuredForCleanIndex(t *testing.T) {
	m := newManager(t, t.TempDir(), config.BackendAuto)
	gt.Equal(t, m.Backend(), "structured")
}

func TestTextualAddsMissingArchivesArray(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), index.FileName)
	gt.NoError(t, os.WriteFile(path, []byte(`{"metadata": {"version": "1.0", "created": "2025-01-01T00:00:00Z"}}`), 0o644))

	s := index.NewTextual(path)
	gt.NoError(t, s.Append(ctx, model.ArchiveEntry{ID: "x", ArchiveFile: "2025-03/a.md"}))

	idx, err := s.Load(ctx)
	gt.NoError(t, err).Required()
	gt.A(t, idx.Archives).Length(1)
	gt.Equal(t, idx.Metadata.Version, "1.0")
}

func TestSelectUnknownBackend(t *testing.T) {
	_, err := index.Select(context.Background(), "index.json", "xml")
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
}

func TestKeywords(t *testing.T) {
	gt.Equal(t, index.Keywords("Performance refactor; tests pending"), []string{"performance", "refactor"})
	gt.A(t, index.Keywords("nothing to see")).Length(0)
}
