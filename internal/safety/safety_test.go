package safety_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	gt.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	gt.NoError(t, err).Required()
	return string(b)
}

func TestFileReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "hello\n")

	gt.NoError(t, safety.FileReadable(path))

	err := safety.FileReadable(filepath.Join(dir, "missing.md"))
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))

	err = safety.FileReadable(dir)
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
}

func TestDirWritableCreates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	gt.NoError(t, safety.DirWritable(dir))

	info, err := os.Stat(dir)
	gt.NoError(t, err)
	gt.True(t, info.IsDir())

	entries, err := os.ReadDir(dir)
	gt.NoError(t, err)
	gt.A(t, entries).Length(0)
}

func TestInRange(t *testing.T) {
	gt.NoError(t, safety.InRange("score.critical", 80, 0, 100))
	err := safety.InRange("score.critical", 120, 0, 100)
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
}

func TestWriteAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	gt.NoError(t, safety.WriteAtomic(path, []byte("one"), 0o644))
	gt.NoError(t, safety.WriteAtomic(path, []byte("two"), 0o644))
	gt.Equal(t, readFile(t, path), "two")

	entries, err := os.ReadDir(filepath.Dir(path))
	gt.NoError(t, err)
	gt.A(t, entries).Length(1)
}

func TestTxRollbackRestores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	writeFile(t, path, "original\n")

	tx, err := safety.Begin(path)
	gt.NoError(t, err).Required()
	gt.NoError(t, os.WriteFile(path, []byte("half written"), 0o644))

	gt.NoError(t, tx.Rollback())
	gt.Equal(t, readFile(t, path), "original\n")

	_, err = os.Stat(tx.BackupPath())
	gt.True(t, os.IsNotExist(err))
}

func TestTxCommitDiscardsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	writeFile(t, path, "original\n")

	tx, err := safety.Begin(path)
	gt.NoError(t, err).Required()
	gt.NoError(t, os.WriteFile(path, []byte("new\n"), 0o644))
	gt.NoError(t, tx.Commit())

	gt.Equal(t, readFile(t, path), "new\n")
	_, err = os.Stat(tx.BackupPath())
	gt.True(t, os.IsNotExist(err))

	// Rollback after commit does nothing.
	gt.NoError(t, tx.Rollback())
	gt.Equal(t, readFile(t, path), "new\n")
}

func TestTxRollbackRemovesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.md")

	tx, err := safety.Begin(path)
	gt.NoError(t, err).Required()
	gt.Equal(t, tx.BackupPath(), "")
	writeFile(t, path, "created\n")

	gt.NoError(t, tx.Rollback())
	_, err = os.Stat(path)
	gt.True(t, os.IsNotExist(err))
}

func TestScopeRollback(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.md")
	artifact := filepath.Join(dir, "archive", "notes-1.md")
	writeFile(t, doc, "before\n")

	scope := safety.NewScope(ctx)
	_, err := scope.Backup(doc)
	gt.NoError(t, err).Required()
	tmp, err := scope.NewTempFile(dir, "rotation")
	gt.NoError(t, err).Required()
	tmp.Close()

	writeFile(t, artifact, "archived\n")
	scope.Track(artifact)
	writeFile(t, doc, "after\n")
	gt.Equal(t, scope.Len(), 3)

	gt.NoError(t, scope.Rollback())

	gt.Equal(t, readFile(t, doc), "before\n")
	_, err = os.Stat(artifact)
	gt.True(t, os.IsNotExist(err))
	_, err = os.Stat(tmp.Name())
	gt.True(t, os.IsNotExist(err))
}

func TestScopeCommitKeepsArtifacts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.md")
	artifact := filepath.Join(dir, "archive.md")
	writeFile(t, doc, "before\n")

	scope := safety.NewScope(ctx)
	backup, err := scope.Backup(doc)
	gt.NoError(t, err).Required()
	tmp, err := scope.NewTempFile(dir, "rotation")
	gt.NoError(t, err).Required()
	tmp.Close()
	writeFile(t, artifact, "archived\n")
	scope.Track(artifact)
	writeFile(t, doc, "after\n")

	gt.NoError(t, scope.Commit())
	gt.NoError(t, scope.Close())

	gt.Equal(t, readFile(t, doc), "after\n")
	gt.Equal(t, readFile(t, artifact), "archived\n")
	_, err = os.Stat(backup)
	gt.True(t, os.IsNotExist(err))
	_, err = os.Stat(tmp.Name())
	gt.True(t, os.IsNotExist(err))
}

func TestScopeCloseRollsBack(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.With(context.Background(), logging.New("debug", buf))
	doc := filepath.Join(t.TempDir(), "notes.md")
	writeFile(t, doc, "before\n")

	func() {
		scope := safety.NewScope(ctx)
		defer scope.Close()
		_, err := scope.Backup(doc)
		gt.NoError(t, err).Required()
		writeFile(t, doc, "after\n")
	}()

	gt.Equal(t, readFile(t, doc), "before\n")
	gt.S(t, buf.String()).Contains("without commit")
}

func TestCopyWithBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.md")
	dst := filepath.Join(dir, "dst.md")
	writeFile(t, src, "new\n")
	writeFile(t, dst, "old\n")

	scope := safety.NewScope(ctx)
	gt.NoError(t, safety.CopyWithBackup(scope, src, dst))
	gt.Equal(t, readFile(t, dst), "new\n")

	gt.NoError(t, scope.Rollback())
	gt.Equal(t, readFile(t, dst), "old\n")
}

func TestMoveWithValidation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.md")
	dst := filepath.Join(dir, "sub", "dst.md")
	writeFile(t, src, "payload\n")

	gt.NoError(t, safety.MoveWithValidation(src, dst))
	gt.Equal(t, readFile(t, dst), "payload\n")
	_, err := os.Stat(src)
	gt.True(t, os.IsNotExist(err))

	err = safety.MoveWithValidation(filepath.Join(dir, "nope.md"), dst)
	gt.True(t, goerr.HasTag(err, model.ErrTagValidation))
}

func TestCheckBudget(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logging.With(context.Background(), logging.New("info", buf))

	timer := safety.StartTimer()
	gt.True(t, safety.CheckBudget(ctx, timer, time.Hour, "fast"))

	time.Sleep(2 * time.Millisecond)
	gt.False(t, safety.CheckBudget(ctx, timer, time.Nanosecond, "slow"))
	gt.S(t, buf.String()).Contains("performance budget exceeded")
	gt.Number(t, timer.ElapsedNs()).Greater(0)
}

func TestScopeDirRollbackRemovesCreatedDirs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	existing := filepath.Join(root, "archive")
	gt.NoError(t, os.MkdirAll(existing, 0o755)).Required()
	month := filepath.Join(existing, "2026", "10")

	scope := safety.NewScope(ctx)
	gt.NoError(t, scope.Dir(month)).Required()
	artifact := filepath.Join(month, "notes-1.md")
	writeFile(t, artifact, "archived\n")
	scope.Track(artifact)

	gt.NoError(t, scope.Rollback())

	_, err := os.Stat(filepath.Join(existing, "2026"))
	gt.True(t, os.IsNotExist(err))
	_, err = os.Stat(existing)
	gt.NoError(t, err)
}

func TestScopeDirKeepsForeignFiles(t *testing.T) {
	ctx := context.Background()
	month := filepath.Join(t.TempDir(), "2026", "10")

	scope := safety.NewScope(ctx)
	gt.NoError(t, scope.Dir(month)).Required()
	writeFile(t, filepath.Join(month, "other.md"), "not ours\n")

	gt.NoError(t, scope.Rollback())
	gt.Equal(t, readFile(t, filepath.Join(month, "other.md")), "not ours\n")
}

func TestScopeReleaseLeavesFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.md")
	writeFile(t, doc, "before\n")

	scope := safety.NewScope(ctx)
	_, err := scope.Backup(doc)
	gt.NoError(t, err).Required()
	writeFile(t, doc, "before\nappended\n")
	gt.NoError(t, scope.Release(doc))
	gt.Equal(t, scope.Len(), 0)

	gt.NoError(t, scope.Rollback())
	gt.Equal(t, readFile(t, doc), "before\nappended\n")

	entries, err := os.ReadDir(dir)
	gt.NoError(t, err).Required()
	gt.A(t, entries).Length(1)
}
