package catalog

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
)

// Stats holds catalog statistics.
type Stats struct {
	DBPath      string       `json:"db_path"`
	DBSizeBytes int64        `json:"db_size_bytes"`
	DBSize      string       `json:"db_size"`
	Archives    int          `json:"archives"`
	Sections    int          `json:"sections"`
	Agents      []AgentStats `json:"agents"`
}

// AgentStats holds per-agent counts.
type AgentStats struct {
	Agent     string `json:"agent"`
	Archives  int    `json:"archives"`
	Critical  int    `json:"critical_items"`
	Important int    `json:"important_items"`
}

// Stats returns catalog statistics.
func (c *Catalog) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: c.path, Agents: []AgentStats{}}

	if info, err := os.Stat(c.path); err == nil {
		st.DBSizeBytes = info.Size()
	}
	st.DBSize = humanize.Bytes(uint64(st.DBSizeBytes))

	c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archives`).Scan(&st.Archives)
	c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections`).Scan(&st.Sections)

	rows, err := c.db.QueryContext(ctx, `
		SELECT agent, COUNT(*) AS cnt, SUM(critical), SUM(important)
		FROM archives
		GROUP BY agent ORDER BY cnt DESC, agent`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var a AgentStats
		rows.Scan(&a.Agent, &a.Archives, &a.Critical, &a.Important)
		st.Agents = append(st.Agents, a)
	}
	return st, nil
}
