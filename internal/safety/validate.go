// Package safety holds the file-level guard rails used by rotation and
// index updates: validation, atomic writes, backups and timers.
package safety

import (
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/model"
)

// FileReadable checks that path is an existing regular file that can be opened.
func FileReadable(path string) error {
	if path == "" {
		return goerr.New("file path is empty", goerr.T(model.ErrTagValidation))
	}
	info, err := os.Stat(path)
	if err != nil {
		return goerr.Wrap(err, "file is not accessible", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}
	if info.IsDir() {
		return goerr.New("path is a directory", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}
	f, err := os.Open(path)
	if err != nil {
		return goerr.Wrap(err, "file is not readable", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}
	return f.Close()
}

// DirWritable ensures dir exists (creating it if needed) and accepts new files.
func DirWritable(dir string) error {
	if dir == "" {
		return goerr.New("directory path is empty", goerr.T(model.ErrTagValidation))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "cannot create directory", goerr.V("dir", dir), goerr.T(model.ErrTagValidation))
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return goerr.Wrap(err, "directory is not writable", goerr.V("dir", dir), goerr.T(model.ErrTagValidation))
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}

// InRange checks min <= v <= max.
func InRange(name string, v, min, max int) error {
	if v < min || v > max {
		return goerr.New("value out of range",
			goerr.V("name", name), goerr.V("value", v), goerr.V("min", min), goerr.V("max", max),
			goerr.T(model.ErrTagValidation))
	}
	return nil
}

// siblingPath returns a path next to target with the given infix, so that a
// rename between the two never crosses a filesystem boundary.
func siblingPath(target, infix string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+infix)
}
