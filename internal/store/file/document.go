package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/linecord/internal/store"
)

// readDocument decodes the JSON document at path into v.
// A missing file is created with the JSON encoding of empty and decoded as such.
func readDocument(path string, v any, empty any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := writeDocument(path, empty); err != nil {
			return err
		}
		data, err = json.Marshal(empty)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", store.ErrIO, path, err)
		}
	} else if err != nil {
		return fmt.Errorf("%w: read %s: %v", store.ErrIO, path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", store.ErrIO, path, err)
	}
	return nil
}

// writeDocument replaces the file at path with the JSON encoding of v.
// The new content is written to a sibling temp file and renamed over the
// target, so readers see either the old or the new document.
func writeDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", store.ErrIO, path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir %s: %v", store.ErrIO, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %v", store.ErrIO, path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", store.ErrIO, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %v", store.ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", store.ErrIO, path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %v", store.ErrIO, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", store.ErrIO, path, err)
	}
	return nil
}
