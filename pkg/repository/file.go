package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/flowbit/invoice-agent/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// File is a JSON-file backed store, one array of entries per file. Save
// writes through a temp file and renames so a crash never leaves a partial
// write behind.
type File struct {
	path string
}

// NewFile creates a file-backed store at the given path. The file is
// created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

func (r *File) Load(ctx context.Context) ([]*model.MemoryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.MemoryEntry{}, nil
		}
		return nil, goerr.Wrap(err, "failed to read memory file", goerr.Value("path", r.path))
	}

	var entries []*model.MemoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, goerr.Wrap(err, "malformed memory file", goerr.Value("path", r.path))
	}

	return entries, nil
}

func (r *File) Save(ctx context.Context, entries []*model.MemoryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode memory entries")
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create memory directory", goerr.Value("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return goerr.Wrap(err, "failed to create temp memory file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write memory file")
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close memory file")
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return goerr.Wrap(err, "failed to replace memory file", goerr.Value("path", r.path))
	}

	return nil
}
