package index

import (
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

// Vocabulary is the fixed set of severity and status tags that become entry
// keywords.
var Vocabulary = []string{
	"critical", "important", "urgent", "todo", "done", "bug", "fix",
	"decision", "blocked", "security", "performance", "refactor", "test",
}

var vocabularyRe = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(Vocabulary))
	for _, w := range Vocabulary {
		out[w] = regexp.MustCompile(`(?i)\b` + w + `\b`)
	}
	return out
}()

// topKeywords is the number of keywords reported by Stats.
const topKeywords = 5

// PatternCounter counts CRITICAL and IMPORTANT lines in an agent's note.
type PatternCounter interface {
	CountPatterns(agent, content string) model.ContentSummary
}

// AppendParams holds parameters for recording a rotation.
type AppendParams struct {
	Agent        string
	ArchiveFile  string // relative to the archive directory
	SummaryFile  string
	OriginalSize int64
	ArchivedSize int64
	LineCount    int
	Compression  string
	// Content is the archived note text, scanned for keywords and counters.
	Content   string
	Timestamp time.Time
}

// Manager owns the index of one archive directory.
type Manager struct {
	dir     string
	path    string
	store   JSONStore
	counter PatternCounter
	entropy io.Reader
}

// NewManager opens the index of dir with the given backend preference.
func NewManager(ctx context.Context, dir, backend string, counter PatternCounter) (*Manager, error) {
	path := filepath.Join(dir, FileName)
	store, err := Select(ctx, path, backend)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Debug("index backend selected", "path", path, "backend", store.Name())
	return &Manager{
		dir:     dir,
		path:    path,
		store:   store,
		counter: counter,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// Dir returns the archive directory.
func (m *Manager) Dir() string { return m.dir }

// Path returns the index file path.
func (m *Manager) Path() string { return m.path }

// Backend returns the active backend name.
func (m *Manager) Backend() string { return m.store.Name() }

// Init creates the archive directory and an empty index if absent.
func (m *Manager) Init(ctx context.Context) error {
	if err := safety.DirWritable(m.dir); err != nil {
		return err
	}
	return m.store.Init(ctx, time.Now())
}

func (m *Manager) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), m.entropy).String()
}

// AppendEntry records one rotation and returns the stored entry.
func (m *Manager) AppendEntry(ctx context.Context, p AppendParams) (*model.ArchiveEntry, error) {
	if p.ArchiveFile == "" {
		return nil, goerr.New("archive file is required", goerr.T(model.ErrTagValidation))
	}
	_, statErr := os.Stat(m.path)
	created := os.IsNotExist(statErr)
	if err := m.Init(ctx); err != nil {
		return nil, err
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := model.ArchiveEntry{
		ID:           m.newID(ts),
		Timestamp:    ts.UTC(),
		Agent:        p.Agent,
		OriginalSize: p.OriginalSize,
		ArchivedSize: p.ArchivedSize,
		ArchiveFile:  filepath.ToSlash(p.ArchiveFile),
		SummaryFile:  filepath.ToSlash(p.SummaryFile),
		LineCount:    p.LineCount,
		Compression:  p.Compression,
		Keywords:     Keywords(p.Content),
	}
	if m.counter != nil {
		entry.ContentSummary = m.counter.CountPatterns(p.Agent, p.Content)
	}

	if err := m.store.Append(ctx, entry); err != nil {
		if created {
			// Do not leave behind an index this call created.
			if rmErr := os.Remove(m.path); rmErr != nil && !os.IsNotExist(rmErr) {
				logging.From(ctx).Warn("cannot remove new index", "path", m.path, "error", rmErr)
			}
		}
		return nil, goerr.Wrap(err, "append index entry",
			goerr.V("index", m.path), goerr.V("archive_file", entry.ArchiveFile), goerr.V("backend", m.store.Name()))
	}
	logging.From(ctx).Debug("index entry appended", "id", entry.ID, "archive_file", entry.ArchiveFile)
	return &entry, nil
}

// Keywords returns the vocabulary words present in content, in vocabulary
// order.
func Keywords(content string) []string {
	out := []string{}
	for _, w := range Vocabulary {
		if vocabularyRe[w].MatchString(content) {
			out = append(out, w)
		}
	}
	return out
}

// Entries returns all entries in stored order.
func (m *Manager) Entries(ctx context.Context) ([]model.ArchiveEntry, error) {
	idx, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Archives, nil
}

// Find returns the entry with the given ID.
func (m *Manager) Find(ctx context.Context, id string) (*model.ArchiveEntry, bool, error) {
	entries, err := m.Entries(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], true, nil
		}
	}
	return nil, false, nil
}

// Count returns the number of entries.
func (m *Manager) Count(ctx context.Context) (int, error) {
	entries, err := m.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// KeywordCount is one row of the keyword frequency table.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Stats describes the index.
type Stats struct {
	IndexPath     string         `json:"index_path"`
	Backend       string         `json:"backend"`
	Entries       int            `json:"entries"`
	IndexSize     int64          `json:"index_size_bytes"`
	IndexSizeText string         `json:"index_size"`
	Oldest        *time.Time     `json:"oldest,omitempty"`
	Newest        *time.Time     `json:"newest,omitempty"`
	NewestText    string         `json:"newest_ago,omitempty"`
	OriginalBytes int64          `json:"original_bytes"`
	ArchivedBytes int64          `json:"archived_bytes"`
	TopKeywords   []KeywordCount `json:"top_keywords"`
	Agents        map[string]int `json:"agents"`
}

// Stats summarizes the index.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	entries, err := m.Entries(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		IndexPath:   m.path,
		Backend:     m.store.Name(),
		Entries:     len(entries),
		TopKeywords: []KeywordCount{},
		Agents:      map[string]int{},
	}
	if info, err := os.Stat(m.path); err == nil {
		st.IndexSize = info.Size()
	}
	st.IndexSizeText = humanize.Bytes(uint64(st.IndexSize))

	freq := map[string]int{}
	for _, e := range entries {
		st.OriginalBytes += e.OriginalSize
		st.ArchivedBytes += e.ArchivedSize
		st.Agents[e.Agent]++
		for _, k := range e.Keywords {
			freq[strings.ToLower(k)]++
		}
		ts := e.Timestamp
		if st.Oldest == nil || ts.Before(*st.Oldest) {
			st.Oldest = &ts
		}
		if st.Newest == nil || ts.After(*st.Newest) {
			st.Newest = &ts
		}
	}
	if st.Newest != nil {
		st.NewestText = humanize.Time(*st.Newest)
	}

	for k, n := range freq {
		st.TopKeywords = append(st.TopKeywords, KeywordCount{Keyword: k, Count: n})
	}
	sort.Slice(st.TopKeywords, func(i, j int) bool {
		a, b := st.TopKeywords[i], st.TopKeywords[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Keyword < b.Keyword
	})
	if len(st.TopKeywords) > topKeywords {
		st.TopKeywords = st.TopKeywords[:topKeywords]
	}
	return st, nil
}

// SearchResult is one match of Search.
type SearchResult struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Agent       string    `json:"agent"`
	ArchiveFile string    `json:"archive_file"`
	Keywords    []string  `json:"keywords"`
}

// Search returns entries with a keyword containing term, ignoring case.
func (m *Manager) Search(ctx context.Context, term string) ([]SearchResult, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, goerr.New("search term is empty", goerr.T(model.ErrTagValidation))
	}
	entries, err := m.Entries(ctx)
	if err != nil {
		return nil, err
	}

	results := []SearchResult{}
	for _, e := range entries {
		if !slices.ContainsFunc(e.Keywords, func(k string) bool {
			return strings.Contains(strings.ToLower(k), term)
		}) {
			continue
		}
		results = append(results, SearchResult{
			ID:          e.ID,
			Timestamp:   e.Timestamp,
			Agent:       e.Agent,
			ArchiveFile: e.ArchiveFile,
			Keywords:    e.Keywords,
		})
	}
	return results, nil
}

// Cleanup keeps the maxEntries most recent entries and returns how many were
// evicted. Archive files of evicted entries are left on disk.
func (m *Manager) Cleanup(ctx context.Context, maxEntries int) (int, error) {
	if err := safety.InRange("max_entries", maxEntries, 0, 1<<31-1); err != nil {
		return 0, err
	}
	entries, err := m.Entries(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) <= maxEntries {
		return 0, nil
	}

	sorted := slices.Clone(entries)
	sortByTime(sorted)
	kept := sorted[len(sorted)-maxEntries:]
	if err := m.store.Rewrite(ctx, kept); err != nil {
		return 0, goerr.Wrap(err, "rewrite index for cleanup", goerr.V("index", m.path))
	}

	removed := len(entries) - len(kept)
	logging.From(ctx).Info("index cleaned up", "removed", removed, "kept", len(kept))
	return removed, nil
}

// OptimizeResult reports what Optimize changed.
type OptimizeResult struct {
	Before     int `json:"before"`
	After      int `json:"after"`
	Duplicates int `json:"duplicates"`
}

// Optimize drops entries that repeat an archive file (the first one wins)
// and sorts the rest by timestamp, oldest first.
func (m *Manager) Optimize(ctx context.Context) (*OptimizeResult, error) {
	entries, err := m.Entries(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	kept := make([]model.ArchiveEntry, 0, len(entries))
	for _, e := range entries {
		if seen[e.ArchiveFile] {
			continue
		}
		seen[e.ArchiveFile] = true
		kept = append(kept, e)
	}
	sortByTime(kept)

	if err := m.store.Rewrite(ctx, kept); err != nil {
		return nil, goerr.Wrap(err, "rewrite index for optimize", goerr.V("index", m.path))
	}
	return &OptimizeResult{
		Before:     len(entries),
		After:      len(kept),
		Duplicates: len(entries) - len(kept),
	}, nil
}

func sortByTime(entries []model.ArchiveEntry) {
	slices.SortStableFunc(entries, func(a, b model.ArchiveEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// IntegrityReport is the advisory result of VerifyIntegrity.
type IntegrityReport struct {
	Total   int      `json:"total"`
	Missing int      `json:"missing"`
	Files   []string `json:"missing_files,omitempty"`
	// Error is set when the index itself could not be read.
	Error string `json:"error,omitempty"`
}

// OK reports whether every referenced archive file exists.
func (r *IntegrityReport) OK() bool { return r.Error == "" && r.Missing == 0 }

// VerifyIntegrity checks that every entry's archive file exists under the
// archive directory. Problems are reported, never returned as errors.
func (m *Manager) VerifyIntegrity(ctx context.Context) *IntegrityReport {
	logger := logging.From(ctx)
	report := &IntegrityReport{}

	entries, err := m.Entries(ctx)
	if err != nil {
		logger.Warn("cannot read index for integrity check", "path", m.path, "error", err)
		report.Error = err.Error()
		return report
	}

	report.Total = len(entries)
	for _, e := range entries {
		path := filepath.Join(m.dir, filepath.FromSlash(e.ArchiveFile))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			continue
		}
		report.Missing++
		report.Files = append(report.Files, e.ArchiveFile)
	}
	if report.Missing > 0 {
		logger.Warn("archive files missing", "missing", report.Missing, "total", report.Total)
	}
	return report
}
