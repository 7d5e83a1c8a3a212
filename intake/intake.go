// Package intake turns uploads, remote URLs and dropped files into spooled
// decks the pipeline can own.
package intake

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/pipeline"
)

// ErrUnsupported is returned for files that are not pitch decks.
var ErrUnsupported = errors.New("unsupported deck type")

// ErrEmpty is returned for zero-byte decks.
var ErrEmpty = errors.New("deck is empty")

// Extensions are the deck formats the extractor reads.
var Extensions = []string{".pdf", ".pptx", ".txt", ".md"}

// Supported reports whether name has a deck extension.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Materialize copies r into a new file under spoolDir and hands ownership to
// the returned TempFile. The spooled name keeps the deck's extension.
func Materialize(r io.Reader, name, spoolDir string) (*pipeline.TempFile, error) {
	if !Supported(name) {
		return nil, errors.Wrapf(ErrUnsupported, "%q", filepath.Base(name))
	}
	path, err := spoolPath(spoolDir, name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create spool file for %s", name)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n == 0 {
		err = errors.Wrapf(ErrEmpty, "%s", name)
	}
	if err != nil {
		os.Remove(path)
		return nil, errors.Wrapf(err, "failed to spool %s", name)
	}
	return pipeline.NewTempFile(path), nil
}

// spoolPath returns a fresh path under spoolDir for a deck called name.
func spoolPath(spoolDir, name string) (string, error) {
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create spool directory %s", spoolDir)
	}
	base := sanitize(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	return filepath.Join(spoolDir, uuid.NewString()[:8]+"-"+base+strings.ToLower(filepath.Ext(name))), nil
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	if b.Len() == 0 {
		return "deck"
	}
	return b.String()
}

// Discard removes a spooled deck that never reached the queue.
func Discard(path string) {
	_ = pipeline.NewTempFile(path).Release()
}
