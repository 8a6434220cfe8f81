package index

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

// Structured decodes the whole index, modifies it in memory and writes it
// back through a temp file and rename. Fields the model does not know are
// dropped on rewrite.
type Structured struct {
	path string
}

// NewStructured returns a structured store for the index at path.
func NewStructured(path string) *Structured {
	return &Structured{path: path}
}

// Name implements JSONStore.
func (s *Structured) Name() string { return "structured" }

// Init implements JSONStore.
func (s *Structured) Init(ctx context.Context, created time.Time) error {
	return initFile(s.path, created)
}

// Load implements JSONStore.
func (s *Structured) Load(ctx context.Context) (*model.ArchiveIndex, error) {
	idx, _, err := loadFile(s.path)
	return idx, err
}

// Append implements JSONStore.
func (s *Structured) Append(ctx context.Context, entry model.ArchiveEntry) error {
	idx, err := s.Load(ctx)
	if err != nil {
		return err
	}
	idx.Archives = append(idx.Archives, entry)
	return s.replace(ctx, idx)
}

// Rewrite implements JSONStore.
func (s *Structured) Rewrite(ctx context.Context, entries []model.ArchiveEntry) error {
	idx, err := s.Load(ctx)
	if err != nil {
		return err
	}
	idx.Archives = append([]model.ArchiveEntry{}, entries...)
	return s.replace(ctx, idx)
}

func (s *Structured) replace(ctx context.Context, idx *model.ArchiveIndex) error {
	if idx.Metadata.Version == "" {
		idx.Metadata.Version = model.IndexVersion
	}
	if idx.Metadata.Created.IsZero() {
		idx.Metadata.Created = time.Now().UTC()
	}
	data, err := encode(idx)
	if err != nil {
		return err
	}
	return commitFile(ctx, s.path, data, len(idx.Archives))
}

// commitFile replaces path with data under a transaction and checks that the
// written file decodes with the expected number of entries. On any failure
// the previous file is restored.
func commitFile(ctx context.Context, path string, data []byte, want int) error {
	tx, err := safety.Begin(path)
	if err != nil {
		return err
	}

	fail := func(err error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.From(ctx).Error("index restore failed", "path", path, "error", rbErr)
		}
		return err
	}

	if err := writeFile(path, data, 0o644); err != nil {
		return fail(err)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		return fail(goerr.Wrap(err, "re-read index", goerr.V("path", path), goerr.T(model.ErrTagResource)))
	}
	idx, err := decode(written)
	if err != nil {
		return fail(goerr.Wrap(err, "index invalid after write", goerr.V("path", path)))
	}
	if len(idx.Archives) != want {
		return fail(goerr.New("index entry count mismatch after write",
			goerr.V("path", path), goerr.V("want", want), goerr.V("got", len(idx.Archives)),
			goerr.T(model.ErrTagIntegrity)))
	}

	return tx.Commit()
}
