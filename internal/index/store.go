// Package index maintains the archive index: the durable JSON record of
// every rotation in an archive directory.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

// FileName is the index document inside an archive directory.
const FileName = "index.json"

// writeFile replaces the index file during a commit.
var writeFile = safety.WriteAtomic

// JSONStore persists an ArchiveIndex. Every mutation replaces the file
// atomically or leaves the previous version in place.
type JSONStore interface {
	// Name identifies the backend ("structured" or "textual").
	Name() string

	// Init creates an empty index if none exists. It is idempotent.
	Init(ctx context.Context, created time.Time) error

	// Load reads the index. A missing file yields an empty index.
	Load(ctx context.Context) (*model.ArchiveIndex, error)

	// Append adds one entry at the end of the archives list.
	Append(ctx context.Context, entry model.ArchiveEntry) error

	// Rewrite replaces the archives list. Entries must come from Load.
	Rewrite(ctx context.Context, entries []model.ArchiveEntry) error
}

func initFile(path string, created time.Time) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return goerr.Wrap(err, "stat index", goerr.V("path", path), goerr.T(model.ErrTagResource))
	}
	data, err := encode(model.NewArchiveIndex(created))
	if err != nil {
		return err
	}
	return safety.WriteAtomic(path, data, 0o644)
}

func loadFile(path string) (*model.ArchiveIndex, []byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.NewArchiveIndex(time.Time{}), nil, nil
	}
	if err != nil {
		return nil, nil, goerr.Wrap(err, "read index", goerr.V("path", path), goerr.T(model.ErrTagResource))
	}
	idx, err := decode(data)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "parse index", goerr.V("path", path))
	}
	return idx, data, nil
}

func decode(data []byte) (*model.ArchiveIndex, error) {
	var idx model.ArchiveIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, goerr.Wrap(err, "index is not well-formed", goerr.T(model.ErrTagIntegrity))
	}
	if idx.Archives == nil {
		idx.Archives = []model.ArchiveEntry{}
	}
	return &idx, nil
}

func encode(idx *model.ArchiveIndex) ([]byte, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, goerr.Wrap(err, "encode index", goerr.T(model.ErrTagIntegrity))
	}
	return append(data, '\n'), nil
}
