package index

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/model"
)

const entryIndent = "    "

// Textual edits the index as text: new entries are spliced into the
// archives array and rewrites replace only that array. Top-level and
// per-entry fields it does not understand are kept byte for byte.
type Textual struct {
	path string
}

// NewTextual returns a textual store for the index at path.
func NewTextual(path string) *Textual {
	return &Textual{path: path}
}

// Name implements JSONStore.
func (s *Textual) Name() string { return "textual" }

// Init implements JSONStore.
func (s *Textual) Init(ctx context.Context, created time.Time) error {
	return initFile(s.path, created)
}

// Load implements JSONStore.
func (s *Textual) Load(ctx context.Context) (*model.ArchiveIndex, error) {
	idx, _, err := loadFile(s.path)
	return idx, err
}

// Append implements JSONStore.
func (s *Textual) Append(ctx context.Context, entry model.ArchiveEntry) error {
	data, err := s.read()
	if err != nil {
		return err
	}
	l, err := locate(data)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(entry, entryIndent, "  ")
	if err != nil {
		return goerr.Wrap(err, "encode entry", goerr.T(model.ErrTagIntegrity))
	}

	var out []byte
	if l.found {
		// Trim whitespace before the closing bracket, then splice.
		at := l.arrayEnd - 1
		for at > l.arrayStart+1 && isSpace(data[at-1]) {
			at--
		}
		var b bytes.Buffer
		b.Write(data[:at])
		if len(l.raws) > 0 {
			b.WriteByte(',')
		}
		b.WriteString("\n" + entryIndent)
		b.Write(raw)
		b.WriteString("\n  ")
		b.Write(data[l.arrayEnd-1:])
		out = b.Bytes()
	} else {
		out = spliceMember(data, l, `"archives": [`+"\n"+entryIndent+string(raw)+"\n  ]")
	}

	return s.commit(ctx, out, len(l.raws)+1)
}

// Rewrite implements JSONStore. Entries are matched to their original text by
// ID (archive file when the ID is empty); unmatched entries are re-encoded.
func (s *Textual) Rewrite(ctx context.Context, entries []model.ArchiveEntry) error {
	data, err := s.read()
	if err != nil {
		return err
	}
	l, err := locate(data)
	if err != nil {
		return err
	}

	originals := map[string][]json.RawMessage{}
	for _, raw := range l.raws {
		var e model.ArchiveEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return goerr.Wrap(err, "decode archive entry", goerr.T(model.ErrTagIntegrity))
		}
		k := entryKey(e)
		originals[k] = append(originals[k], raw)
	}

	var arr bytes.Buffer
	arr.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			arr.WriteByte(',')
		}
		arr.WriteString("\n" + entryIndent)

		k := entryKey(e)
		if q := originals[k]; len(q) > 0 {
			originals[k] = q[1:]
			if err := json.Indent(&arr, bytes.TrimSpace(q[0]), entryIndent, "  "); err != nil {
				return goerr.Wrap(err, "re-indent archive entry", goerr.T(model.ErrTagIntegrity))
			}
			continue
		}
		raw, err := json.MarshalIndent(e, entryIndent, "  ")
		if err != nil {
			return goerr.Wrap(err, "encode entry", goerr.T(model.ErrTagIntegrity))
		}
		arr.Write(raw)
	}
	if len(entries) > 0 {
		arr.WriteString("\n  ")
	}
	arr.WriteByte(']')

	var out []byte
	if l.found {
		out = make([]byte, 0, len(data)+arr.Len())
		out = append(out, data[:l.arrayStart]...)
		out = append(out, arr.Bytes()...)
		out = append(out, data[l.arrayEnd:]...)
	} else {
		out = spliceMember(data, l, `"archives": `+arr.String())
	}

	return s.commit(ctx, out, len(entries))
}

func (s *Textual) read() ([]byte, error) {
	_, data, err := loadFile(s.path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, goerr.New("index not initialized", goerr.V("path", s.path), goerr.T(model.ErrTagValidation))
	}
	return data, nil
}

// commit validates the spliced document before it touches disk, then
// replaces the file under a transaction.
func (s *Textual) commit(ctx context.Context, out []byte, want int) error {
	if !json.Valid(out) {
		return goerr.New("spliced index is not well-formed", goerr.V("path", s.path), goerr.T(model.ErrTagIntegrity))
	}
	return commitFile(ctx, s.path, out, want)
}

func entryKey(e model.ArchiveEntry) string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	return "file:" + e.ArchiveFile
}

// layout records where the archives array sits in an index document.
type layout struct {
	found      bool
	arrayStart int // offset of '['
	arrayEnd   int // offset just past ']'
	objectEnd  int // offset of the closing '}'
	members    int
	raws       []json.RawMessage
}

// locate walks the top-level object and finds the archives array.
func locate(data []byte) (*layout, error) {
	bad := func(err error) error {
		return goerr.Wrap(err, "index is not well-formed", goerr.T(model.ErrTagIntegrity))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return nil, bad(err)
	} else if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, goerr.New("index is not a JSON object", goerr.T(model.ErrTagIntegrity))
	}

	l := &layout{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, bad(err)
		}
		key, _ := tok.(string)
		l.members++

		if key != "archives" || l.found {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, bad(err)
			}
			continue
		}

		tok, err = dec.Token()
		if err != nil {
			return nil, bad(err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return nil, goerr.New("archives is not an array", goerr.T(model.ErrTagIntegrity))
		}
		l.found = true
		l.arrayStart = int(dec.InputOffset()) - 1
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, bad(err)
			}
			l.raws = append(l.raws, raw)
		}
		if _, err := dec.Token(); err != nil {
			return nil, bad(err)
		}
		l.arrayEnd = int(dec.InputOffset())
	}

	if _, err := dec.Token(); err != nil {
		return nil, bad(err)
	}
	l.objectEnd = int(dec.InputOffset()) - 1
	if _, err := dec.Token(); err != io.EOF {
		return nil, goerr.New("trailing data after index object", goerr.T(model.ErrTagIntegrity))
	}
	return l, nil
}

// spliceMember inserts a member just before the closing brace.
func spliceMember(data []byte, l *layout, member string) []byte {
	at := l.objectEnd
	for at > 0 && isSpace(data[at-1]) {
		at--
	}
	var b bytes.Buffer
	b.Write(data[:at])
	if l.members > 0 {
		b.WriteByte(',')
	}
	b.WriteString("\n  " + member + "\n")
	b.Write(data[l.objectEnd:])
	return b.Bytes()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
