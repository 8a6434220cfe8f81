package safety

import (
	"fmt"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/model"
)

type txState int

const (
	txOpen txState = iota
	txCommitted
	txRolledBack
)

// Tx snapshots a single file so that a rewrite can be undone.
//
// Begin copies the file to a hidden sibling; Commit discards the copy and
// Rollback renames it back over the file. If the file did not exist at Begin,
// Rollback removes whatever was written in its place.
type Tx struct {
	path    string
	backup  string
	existed bool
	created time.Time
	state   txState
}

// Begin snapshots path.
func Begin(path string) (*Tx, error) {
	tx := &Tx{path: path, created: time.Now()}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return nil, goerr.New("cannot snapshot a directory", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	case err == nil:
		tx.existed = true
		tx.backup = siblingPath(path, fmt.Sprintf(".bak-%d", tx.created.UnixNano()))
		if err := copyFile(path, tx.backup); err != nil {
			return nil, goerr.Wrap(err, "snapshot file", goerr.V("path", path))
		}
	case os.IsNotExist(err):
		// Nothing to snapshot; Rollback deletes the file instead.
	default:
		return nil, goerr.Wrap(err, "stat file for snapshot", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}

	return tx, nil
}

// Path returns the protected file.
func (tx *Tx) Path() string { return tx.path }

// BackupPath returns the snapshot location, empty when the file did not exist.
func (tx *Tx) BackupPath() string { return tx.backup }

// Commit discards the snapshot. Calling it after Rollback is an error.
func (tx *Tx) Commit() error {
	switch tx.state {
	case txCommitted:
		return nil
	case txRolledBack:
		return goerr.New("transaction already rolled back", goerr.V("path", tx.path))
	}
	tx.state = txCommitted
	if tx.backup == "" {
		return nil
	}
	if err := os.Remove(tx.backup); err != nil && !os.IsNotExist(err) {
		return goerr.Wrap(err, "remove snapshot", goerr.V("backup", tx.backup))
	}
	return nil
}

// Rollback restores the snapshot. It is a no-op after Commit.
func (tx *Tx) Rollback() error {
	if tx.state != txOpen {
		return nil
	}
	tx.state = txRolledBack

	if !tx.existed {
		if err := os.Remove(tx.path); err != nil && !os.IsNotExist(err) {
			return goerr.Wrap(err, "remove file created in transaction", goerr.V("path", tx.path), goerr.T(model.ErrTagResource))
		}
		return nil
	}
	if err := os.Rename(tx.backup, tx.path); err != nil {
		return goerr.Wrap(err, "restore snapshot",
			goerr.V("path", tx.path), goerr.V("backup", tx.backup), goerr.T(model.ErrTagResource))
	}
	return nil
}
