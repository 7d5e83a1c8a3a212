package pipeline

import (
	"os"
	"sync"

	"github.com/teranos/dealflow/errors"
)

// Artifact is a temporary resource a run owns, such as a materialized upload.
// The runner releases it exactly once however the run ends.
type Artifact interface {
	Path() string
	Release() error
}

// TempFile is an Artifact backed by a file that is removed on release.
type TempFile struct {
	path    string
	once    sync.Once
	err     error
	removed int
	mu      sync.Mutex
}

// NewTempFile takes ownership of an existing file at path.
func NewTempFile(path string) *TempFile {
	return &TempFile{path: path}
}

func (f *TempFile) Path() string { return f.path }

// Release removes the file. Later calls return the first call's error.
func (f *TempFile) Release() error {
	f.once.Do(func() {
		err := os.Remove(f.path)
		if err != nil && !os.IsNotExist(err) {
			f.err = errors.Wrapf(err, "failed to remove %s", f.path)
			return
		}
		f.mu.Lock()
		f.removed++
		f.mu.Unlock()
	})
	return f.err
}

// Releases returns how many times the file was removed (0 or 1). A file
// already gone counts; a failed removal does not.
func (f *TempFile) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removed
}
