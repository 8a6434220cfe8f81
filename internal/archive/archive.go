// Package archive stores rotated note content under a year-month layout,
// optionally compressed.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/config"
	"github.com/rcliao/agent-notes/internal/model"
	"github.com/rcliao/agent-notes/internal/safety"
)

const (
	monthLayout = "2006-01"
	stampLayout = "20060102-150405"

	// maxNameAttempts bounds the search for a free artifact name when
	// several rotations share the same second.
	maxNameAttempts = 1000
)

// Summary file suffixes, written next to the artifact.
const (
	SummarySuffix  = ".summary.md"
	DetailedSuffix = ".detailed.md"
)

// Artifact describes one archived note.
type Artifact struct {
	// Rel is the path relative to the archive directory, slash separated.
	Rel          string
	Path         string
	OriginalSize int64
	ArchivedSize int64
	Compression  string
}

// Store writes and reads artifacts below a root directory.
type Store struct {
	dir         string
	compression string
}

// New returns a store rooted at dir. compression is one of the
// config.Compression* values.
func New(dir, compression string) *Store {
	if compression == "" {
		compression = config.CompressionNone
	}
	return &Store{dir: dir, compression: compression}
}

// Dir returns the archive root.
func (s *Store) Dir() string { return s.dir }

// Compression returns the mode used for new artifacts.
func (s *Store) Compression() string { return s.compression }

// Abs resolves a path relative to the archive root.
func (s *Store) Abs(rel string) string {
	return filepath.Join(s.dir, filepath.FromSlash(rel))
}

// Ext returns the artifact file extension for a compression mode.
func Ext(compression string) string {
	switch compression {
	case config.CompressionGzip:
		return ".md.gz"
	case config.CompressionZstd:
		return ".md.zst"
	default:
		return ".md"
	}
}

// CompressionOf infers the compression mode from a file name.
func CompressionOf(name string) string {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return config.CompressionGzip
	case strings.HasSuffix(name, ".zst"):
		return config.CompressionZstd
	default:
		return config.CompressionNone
	}
}

// MonthDir returns the partition name for t, e.g. "2025-03".
func MonthDir(t time.Time) string {
	return t.Format(monthLayout)
}

// BaseName returns the artifact name without extension.
func BaseName(agent string, at time.Time) string {
	if agent == "" {
		agent = "agent"
	}
	return fmt.Sprintf("%s-notes-%s", agent, at.Format(stampLayout))
}

// SummaryRel returns the summary path that belongs to an artifact.
func SummaryRel(artifactRel, suffix string) string {
	return stripExt(artifactRel) + suffix
}

func stripExt(name string) string {
	for _, ext := range []string{".md.gz", ".md.zst", ".md"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// Encode compresses data.
func Encode(data []byte, compression string) ([]byte, error) {
	switch compression {
	case config.CompressionNone, "":
		return data, nil
	case config.CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, goerr.Wrap(err, "gzip encode", goerr.T(model.ErrTagResource))
		}
		if err := w.Close(); err != nil {
			return nil, goerr.Wrap(err, "gzip flush", goerr.T(model.ErrTagResource))
		}
		return buf.Bytes(), nil
	case config.CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, goerr.Wrap(err, "create zstd encoder", goerr.T(model.ErrTagResource))
		}
		defer enc.Close()
		return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	default:
		return nil, goerr.New("unknown compression", goerr.V("compression", compression), goerr.T(model.ErrTagValidation))
	}
}

// Decode reverses Encode.
func Decode(data []byte, compression string) ([]byte, error) {
	switch compression {
	case config.CompressionNone, "":
		return data, nil
	case config.CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, goerr.Wrap(err, "open gzip stream", goerr.T(model.ErrTagIntegrity))
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, goerr.Wrap(err, "gzip decode", goerr.T(model.ErrTagIntegrity))
		}
		return out, nil
	case config.CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, goerr.Wrap(err, "create zstd decoder", goerr.T(model.ErrTagResource))
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, goerr.Wrap(err, "zstd decode", goerr.T(model.ErrTagIntegrity))
		}
		return out, nil
	default:
		return nil, goerr.New("unknown compression", goerr.V("compression", compression), goerr.T(model.ErrTagValidation))
	}
}

// Put archives content for agent at time at. The new file and any directory
// created for it are tracked in scope so a rollback removes them.
func (s *Store) Put(scope *safety.Scope, agent string, at time.Time, content []byte) (*Artifact, error) {
	month := MonthDir(at)
	monthDir := filepath.Join(s.dir, month)
	if err := scope.Dir(monthDir); err != nil {
		return nil, err
	}

	name, err := freeName(monthDir, BaseName(agent, at), Ext(s.compression))
	if err != nil {
		return nil, err
	}

	data, err := Encode(content, s.compression)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(monthDir, name)
	scope.Track(path)
	if err := safety.WriteAtomic(path, data, 0o644); err != nil {
		return nil, err
	}

	return &Artifact{
		Rel:          month + "/" + name,
		Path:         path,
		OriginalSize: int64(len(content)),
		ArchivedSize: int64(len(data)),
		Compression:  s.compression,
	}, nil
}

// PutSummary writes an uncompressed summary next to an artifact and returns
// its relative path.
func (s *Store) PutSummary(scope *safety.Scope, artifactRel, suffix, content string) (string, error) {
	rel := SummaryRel(artifactRel, suffix)
	path := s.Abs(rel)
	scope.Track(path)
	if err := safety.WriteAtomic(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// Read returns the decoded content of an artifact.
func (s *Store) Read(rel string) ([]byte, error) {
	path := s.Abs(rel)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "read archive", goerr.V("path", path), goerr.T(model.ErrTagValidation))
	}
	out, err := Decode(data, CompressionOf(rel))
	if err != nil {
		return nil, goerr.Wrap(err, "decode archive", goerr.V("path", path))
	}
	return out, nil
}

// Stat reports the on-disk size of an artifact. ok is false when it is
// missing or empty.
func (s *Store) Stat(rel string) (size int64, ok bool) {
	info, err := os.Stat(s.Abs(rel))
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), info.Size() > 0
}

func freeName(dir, base, ext string) (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return name, nil
		}
	}
	return "", goerr.New("no free archive name", goerr.V("dir", dir), goerr.V("base", base), goerr.T(model.ErrTagResource))
}
