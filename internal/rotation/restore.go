package rotation

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

// Restore writes the archived content of entry id back to path, replacing
// the current note. The current note is put back if the copy fails. The
// index is not changed.
func (e *Engine) Restore(ctx context.Context, id, path string) (*model.ArchiveEntry, error) {
	entry, found, err := e.index.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, goerr.New("archive entry not found", goerr.V("id", id), goerr.T(model.ErrTagValidation))
	}
	data, err := e.archive.Read(entry.ArchiveFile)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := safety.DirWritable(dir); err != nil {
		return nil, err
	}

	scope := safety.NewScope(ctx)
	defer scope.Close()

	tmp, err := scope.NewTempFile(dir, ".restore")
	if err != nil {
		return nil, err
	}
	_, werr := tmp.Write(data)
	merr := tmp.Chmod(notePerm(path))
	cerr := tmp.Close()
	if err := errors.Join(werr, merr, cerr); err != nil {
		return nil, goerr.Wrap(err, "stage restored note", goerr.V("path", path), goerr.T(model.ErrTagResource))
	}

	if err := safety.CopyWithBackup(scope, tmp.Name(), path); err != nil {
		return nil, goerr.Wrap(err, "restore note", goerr.V("path", path), goerr.V("id", id))
	}
	if err := scope.Commit(); err != nil {
		logging.From(ctx).Warn("note restored with leftover backups", "path", path, "error", err)
	}

	logging.From(ctx).Info("note restored", "path", path, "id", id, "archive", entry.ArchiveFile)
	return entry, nil
}
