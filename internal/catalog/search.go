package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/model"
)

// SearchParams holds parameters for a full-text search.
type SearchParams struct {
	Query string
	Agent string
	Limit int
}

// Hit is one matching section.
type Hit struct {
	ArchiveID   string    `json:"archive_id"`
	Agent       string    `json:"agent"`
	Timestamp   time.Time `json:"timestamp"`
	ArchiveFile string    `json:"archive_file"`
	Keywords    []string  `json:"keywords"`
	Section     string    `json:"section,omitempty"`
	StartLine   int       `json:"start_line"`
	EndLine     int       `json:"end_line"`
	Snippet     string    `json:"snippet"`
}

// Search finds archived sections matching every word of the query, best
// matches first.
func (c *Catalog) Search(ctx context.Context, p SearchParams) ([]Hit, error) {
	match := ftsQuery(p.Query)
	if match == "" {
		return nil, goerr.New("search query is empty", goerr.T(model.ErrTagValidation))
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"sections_fts MATCH ?"}
	args := []interface{}{match}
	if p.Agent != "" {
		where = append(where, "a.agent = ?")
		args = append(args, p.Agent)
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.agent, a.timestamp, a.archive_file, a.keywords,
		       s.title, s.start_line, s.end_line,
		       snippet(sections_fts, 1, '[', ']', '...', 12)
		FROM sections_fts
		JOIN sections s ON s.rowid = sections_fts.rowid
		JOIN archives a ON a.id = s.archive_id
		WHERE %s
		ORDER BY bm25(sections_fts), a.timestamp DESC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "search catalog", goerr.V("query", p.Query))
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		var ts, keywords string
		if err := rows.Scan(&h.ArchiveID, &h.Agent, &ts, &h.ArchiveFile, &keywords,
			&h.Section, &h.StartLine, &h.EndLine, &h.Snippet); err != nil {
			return nil, goerr.Wrap(err, "scan search hit")
		}
		h.Timestamp, _ = time.Parse(time.RFC3339, ts)
		json.Unmarshal([]byte(keywords), &h.Keywords)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsQuery quotes each word so user input is never parsed as FTS syntax.
func ftsQuery(q string) string {
	var terms []string
	for _, w := range strings.Fields(q) {
		w = strings.ReplaceAll(w, `"`, `""`)
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " ")
}
