package media

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// File is a downloaded scratch file owned by one relay attempt.
// Release deletes it; call it with defer right after a successful Fetch.
type File struct {
	Path string
	Name string
	Kind Kind
	Size int64
	MIME string

	once sync.Once
	err  error
}

// Release removes the file from disk. It is safe to call more than once and
// treats an already missing file as released.
func (f *File) Release() error {
	if f == nil {
		return nil
	}
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.err = err
			slog.Warn("media: failed to remove scratch file", "path", f.Path, "error", err)
		}
	})
	return f.err
}
