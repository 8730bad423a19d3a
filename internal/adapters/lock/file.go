package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

// File locks with flock(2) on <dir>/<key>.lock, so it also excludes other
// processes on the same host.
type File struct {
	dir string
}

// NewFile creates a File locker rooted at dir, creating dir if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// TryLock implements Locker.
func (f *File) TryLock(_ context.Context, key string) (Unlock, error) {
	fl := flock.New(filepath.Join(f.dir, lockFileName(key)))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once sync.Once
	return func(context.Context) error {
		var uerr error
		once.Do(func() {
			uerr = fl.Unlock()
		})
		return uerr
	}, nil
}

func lockFileName(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return r.Replace(key) + ".lock"
}
