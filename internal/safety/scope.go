package safety

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
)

type resourceKind int

const (
	kindTemp resourceKind = iota
	kindBackup
	kindArtifact
	kindDir
)

func (k resourceKind) String() string {
	switch k {
	case kindTemp:
		return "temp"
	case kindBackup:
		return "backup"
	case kindDir:
		return "dir"
	default:
		return "artifact"
	}
}

type resource struct {
	kind    resourceKind
	path    string
	tx      *Tx
	created time.Time
}

// Scope registers the temp files, backups and new artifacts of one operation.
//
//	scope := safety.NewScope(ctx)
//	defer scope.Close()
//	...
//	return scope.Commit()
//
// Commit removes temps and backups and keeps artifacts. Rollback restores
// backups and removes temps, artifacts and the directories created for them. Close rolls back unless the scope
// was already committed or rolled back.
type Scope struct {
	resources []resource
	done      bool
	logger    *slog.Logger
}

// NewScope returns an empty scope logging through the context logger.
func NewScope(ctx context.Context) *Scope {
	return &Scope{logger: logging.From(ctx)}
}

// NewTempFile creates a temp file in dir (os.TempDir when empty).
func (s *Scope) NewTempFile(dir, prefix string) (*os.File, error) {
	f, err := os.CreateTemp(dir, prefix+"-*")
	if err != nil {
		return nil, goerr.Wrap(err, "create temp file", goerr.V("prefix", prefix), goerr.T(model.ErrTagResource))
	}
	s.resources = append(s.resources, resource{kind: kindTemp, path: f.Name(), created: time.Now()})
	return f, nil
}

// Backup snapshots path and returns the snapshot location.
func (s *Scope) Backup(path string) (string, error) {
	tx, err := Begin(path)
	if err != nil {
		return "", err
	}
	s.resources = append(s.resources, resource{kind: kindBackup, path: path, tx: tx, created: time.Now()})
	s.logger.Debug("backup registered", "path", path, "backup", tx.BackupPath())
	return tx.BackupPath(), nil
}

// Track registers a file created by the operation.
func (s *Scope) Track(path string) {
	s.resources = append(s.resources, resource{kind: kindArtifact, path: path, created: time.Now()})
}

// Dir makes sure dir exists and is writable. Directories it had to create
// are removed on Rollback if they are empty by then.
func (s *Scope) Dir(dir string) error {
	var missing []string
	for d := filepath.Clean(dir); ; {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			break
		}
		missing = append(missing, d)
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	if err := DirWritable(dir); err != nil {
		return err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		s.resources = append(s.resources, resource{kind: kindDir, path: missing[i], created: time.Now()})
	}
	return nil
}

// Release discards the backup of path without restoring it. Rollback then
// leaves path as it is.
func (s *Scope) Release(path string) error {
	for i, r := range s.resources {
		if r.kind == kindBackup && r.path == path {
			s.resources = append(s.resources[:i], s.resources[i+1:]...)
			return r.tx.Commit()
		}
	}
	return nil
}

// Len reports the number of registered resources.
func (s *Scope) Len() int { return len(s.resources) }

// Commit finalizes the scope.
func (s *Scope) Commit() error {
	if s.done {
		return nil
	}
	s.done = true

	var errs []error
	for _, r := range s.resources {
		switch r.kind {
		case kindTemp:
			if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
		case kindBackup:
			if err := r.tx.Commit(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.resources = nil
	if len(errs) > 0 {
		return goerr.Wrap(errors.Join(errs...), "release scope resources")
	}
	return nil
}

// Rollback undoes the scope in reverse registration order.
func (s *Scope) Rollback() error {
	if s.done {
		return nil
	}
	s.done = true

	var errs []error
	for i := len(s.resources) - 1; i >= 0; i-- {
		r := s.resources[i]
		var err error
		switch r.kind {
		case kindBackup:
			err = r.tx.Rollback()
		case kindDir:
			// Someone else may have put files there since.
			if rmErr := os.Remove(r.path); rmErr != nil && !os.IsNotExist(rmErr) {
				s.logger.Debug("directory kept", "path", r.path, "error", rmErr)
			}
		default:
			if rmErr := os.Remove(r.path); rmErr != nil && !os.IsNotExist(rmErr) {
				err = rmErr
			}
		}
		if err != nil {
			s.logger.Error("rollback step failed", "kind", r.kind.String(), "path", r.path, "error", err)
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("rolled back", "kind", r.kind.String(), "path", r.path)
	}
	s.resources = nil
	if len(errs) > 0 {
		return goerr.Wrap(errors.Join(errs...), "rollback scope", goerr.T(model.ErrTagResource))
	}
	return nil
}

// Close rolls back an unfinished scope.
func (s *Scope) Close() error {
	if s.done {
		return nil
	}
	s.logger.Warn("scope closed without commit, rolling back", "resources", len(s.resources))
	return s.Rollback()
}
