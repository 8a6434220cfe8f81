package index

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rcliao/agent-notes/internal/config"
	"github.com/rcliao/agent-notes/internal/logging"
	"github.com/rcliao/agent-notes/internal/model"
)

// Select picks the backend for the index at path. With BackendAuto, an
// existing index that the strict typed decoder rejects but that is still
// valid JSON goes to the textual backend, so fields written by other tools
// survive updates. Everything else uses the structured backend.
func Select(ctx context.Context, path, preference string) (JSONStore, error) {
	switch preference {
	case config.BackendStructured:
		return NewStructured(path), nil
	case config.BackendTextual:
		return NewTextual(path), nil
	case config.BackendAuto, "":
	default:
		return nil, goerr.New("unknown index backend", goerr.V("backend", preference), goerr.T(model.ErrTagValidation))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return NewStructured(path), nil
	}
	if strictDecodes(data) || !json.Valid(data) {
		return NewStructured(path), nil
	}

	logging.From(ctx).Info("index carries unknown fields, using textual backend", "path", path)
	return NewTextual(path), nil
}

func strictDecodes(data []byte) bool {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var idx model.ArchiveIndex
	return dec.Decode(&idx) == nil
}
