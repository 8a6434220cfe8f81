// Package catalog mirrors archive index entries into a SQLite database with a
// full-text index over the archived notes, section by section.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/agent-notes/internal/analyzer"
	"github.com/rcliao/agent-notes/internal/model"
)

// Catalog is a SQLite-backed searchable copy of the archive.
type Catalog struct {
	db      *sql.DB
	path    string
	entropy *rand.Rand
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "create catalog dir", goerr.V("dir", dir), goerr.T(model.ErrTagResource))
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "open catalog", goerr.V("path", path), goerr.T(model.ErrTagResource))
	}

	c := &Catalog{
		db:      db,
		path:    path,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "migrate catalog", goerr.V("path", path), goerr.T(model.ErrTagResource))
	}
	return c, nil
}

// Path returns the database file.
func (c *Catalog) Path() string { return c.path }

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String()
}

func (c *Catalog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS archives (
		id            TEXT PRIMARY KEY,
		agent         TEXT NOT NULL,
		timestamp     TEXT NOT NULL,
		archive_file  TEXT NOT NULL,
		summary_file  TEXT,
		keywords      TEXT,
		original_size INTEGER NOT NULL DEFAULT 0,
		archived_size INTEGER NOT NULL DEFAULT 0,
		line_count    INTEGER NOT NULL DEFAULT 0,
		critical      INTEGER NOT NULL DEFAULT 0,
		important     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_archives_agent ON archives(agent);
	CREATE INDEX IF NOT EXISTS idx_archives_timestamp ON archives(timestamp DESC);

	CREATE TABLE IF NOT EXISTS sections (
		id          TEXT PRIMARY KEY,
		archive_id  TEXT NOT NULL REFERENCES archives(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		text        TEXT NOT NULL,
		start_line  INTEGER,
		end_line    INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sections_archive ON sections(archive_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS sections_fts USING fts5(
		title,
		text,
		content=sections,
		content_rowid=rowid
	);

	CREATE TRIGGER IF NOT EXISTS sections_ai AFTER INSERT ON sections BEGIN
		INSERT INTO sections_fts(rowid, title, text) VALUES (new.rowid, new.title, new.text);
	END;
	CREATE TRIGGER IF NOT EXISTS sections_ad AFTER DELETE ON sections BEGIN
		INSERT INTO sections_fts(sections_fts, rowid, title, text) VALUES('delete', old.rowid, old.title, old.text);
	END;
	CREATE TRIGGER IF NOT EXISTS sections_au AFTER UPDATE ON sections BEGIN
		INSERT INTO sections_fts(sections_fts, rowid, title, text) VALUES('delete', old.rowid, old.title, old.text);
		INSERT INTO sections_fts(rowid, title, text) VALUES (new.rowid, new.title, new.text);
	END;
	`
	_, err := c.db.Exec(schema)
	return err
}

// Record stores an entry and the sections of its archived content. Recording
// the same entry again replaces it.
func (c *Catalog) Record(ctx context.Context, entry model.ArchiveEntry, content string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "begin catalog tx", goerr.T(model.ErrTagResource))
	}
	defer tx.Rollback()

	if err := recordTx(ctx, tx, entry, content, c.newID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "commit catalog tx", goerr.V("id", entry.ID), goerr.T(model.ErrTagResource))
	}
	return nil
}

func recordTx(ctx context.Context, tx *sql.Tx, entry model.ArchiveEntry, content string, newID func() string) error {
	keywords, _ := json.Marshal(entry.Keywords)

	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE archive_id = ?`, entry.ID); err != nil {
		return goerr.Wrap(err, "delete old sections", goerr.V("id", entry.ID), goerr.T(model.ErrTagResource))
	}
	_, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO archives (id, agent, timestamp, archive_file, summary_file, keywords,
		                                  original_size, archived_size, line_count, critical, important)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Agent, entry.Timestamp.UTC().Format(time.RFC3339), entry.ArchiveFile,
		entry.SummaryFile, string(keywords), entry.OriginalSize, entry.ArchivedSize, entry.LineCount,
		entry.ContentSummary.CriticalItems, entry.ContentSummary.ImportantItems)
	if err != nil {
		return goerr.Wrap(err, "insert archive", goerr.V("id", entry.ID), goerr.T(model.ErrTagResource))
	}

	lines := model.SplitLines(content)
	for i, s := range analyzer.Sections(lines) {
		text := strings.Join(lines[s.StartLine-1:s.EndLine], "\n")
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sections (id, archive_id, seq, title, text, start_line, end_line)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newID(), entry.ID, i, s.Title, text, s.StartLine, s.EndLine)
		if err != nil {
			return goerr.Wrap(err, "insert section", goerr.V("id", entry.ID), goerr.V("seq", i), goerr.T(model.ErrTagResource))
		}
	}
	return nil
}

// RebuildResult reports a Rebuild run.
type RebuildResult struct {
	Recorded int      `json:"recorded"`
	Skipped  []string `json:"skipped,omitempty"`
}

// Rebuild replaces the catalog contents with entries. load returns the
// archived content of an entry; entries it fails on are skipped.
func (c *Catalog) Rebuild(ctx context.Context, entries []model.ArchiveEntry, load func(model.ArchiveEntry) (string, error)) (*RebuildResult, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "begin catalog tx", goerr.T(model.ErrTagResource))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sections`); err != nil {
		return nil, goerr.Wrap(err, "clear sections", goerr.T(model.ErrTagResource))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM archives`); err != nil {
		return nil, goerr.Wrap(err, "clear archives", goerr.T(model.ErrTagResource))
	}

	res := &RebuildResult{}
	for _, e := range entries {
		content, err := load(e)
		if err != nil {
			res.Skipped = append(res.Skipped, e.ArchiveFile)
			continue
		}
		if err := recordTx(ctx, tx, e, content, c.newID); err != nil {
			return nil, err
		}
		res.Recorded++
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "commit catalog rebuild", goerr.T(model.ErrTagResource))
	}
	return res, nil
}
