package safety

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/model"
)

// WriteAtomic writes data to a temp file in the target directory and renames
// it over path. Readers observe either the old or the new content.
func WriteAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "create parent directory", goerr.V("dir", dir), goerr.T(model.ErrTagResource))
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return goerr.Wrap(err, "create temp file", goerr.V("path", path), goerr.T(model.ErrTagResource))
	}
	tmp := f.Name()

	fail := func(err error, msg string) error {
		f.Close()
		os.Remove(tmp)
		return goerr.Wrap(err, msg, goerr.V("path", path), goerr.T(model.ErrTagResource))
	}

	if _, err := f.Write(data); err != nil {
		return fail(err, "write temp file")
	}
	if err := f.Sync(); err != nil {
		return fail(err, "sync temp file")
	}
	if err := f.Chmod(perm); err != nil {
		return fail(err, "chmod temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return goerr.Wrap(err, "close temp file", goerr.V("path", path), goerr.T(model.ErrTagResource))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return goerr.Wrap(err, "rename temp file", goerr.V("path", path), goerr.T(model.ErrTagResource))
	}
	return nil
}

// copyFile copies src to dst atomically, preserving the source mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return goerr.Wrap(err, "open source", goerr.V("src", src), goerr.T(model.ErrTagValidation))
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return goerr.Wrap(err, "stat source", goerr.V("src", src))
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return goerr.Wrap(err, "read source", goerr.V("src", src), goerr.T(model.ErrTagResource))
	}
	return WriteAtomic(dst, data, info.Mode().Perm())
}

// CopyWithBackup copies src over dst. An existing dst is backed up in the
// scope first, so a later Rollback puts it back.
func CopyWithBackup(scope *Scope, src, dst string) error {
	if err := FileReadable(src); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		if _, err := scope.Backup(dst); err != nil {
			return err
		}
	} else {
		scope.Track(dst)
	}
	return copyFile(src, dst)
}

// MoveWithValidation moves src to dst and checks that the destination has the
// same size as the source had. Cross-device moves fall back to copy+remove.
func MoveWithValidation(src, dst string) error {
	if err := FileReadable(src); err != nil {
		return err
	}
	if err := DirWritable(filepath.Dir(dst)); err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return goerr.Wrap(err, "stat source", goerr.V("src", src))
	}

	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return goerr.Wrap(err, "move file", goerr.V("src", src), goerr.V("dst", dst), goerr.T(model.ErrTagResource))
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			return goerr.Wrap(err, "remove moved source", goerr.V("src", src), goerr.T(model.ErrTagResource))
		}
	}

	moved, err := os.Stat(dst)
	if err != nil {
		return goerr.Wrap(err, "destination missing after move", goerr.V("dst", dst), goerr.T(model.ErrTagIntegrity))
	}
	if moved.Size() != info.Size() {
		return goerr.New("size mismatch after move",
			goerr.V("dst", dst), goerr.V("want", info.Size()), goerr.V("got", moved.Size()),
			goerr.T(model.ErrTagIntegrity))
	}
	return nil
}
