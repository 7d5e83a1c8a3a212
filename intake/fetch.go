package intake

import (
	"context"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-getter"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/pipeline"
)

// Fetch downloads a deck from src into spoolDir. src is anything go-getter
// detects: an http(s) URL, an s3:: or gcs:: address, or a local path. It
// returns the spooled file and the deck's original file name.
func Fetch(ctx context.Context, src, spoolDir string) (*pipeline.TempFile, string, error) {
	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}
	detected, err := getter.Detect(src, pwd, getter.Detectors)
	if err != nil {
		return nil, "", errors.Wrapf(err, "could not resolve deck source %q", src)
	}

	name := deckName(detected)
	if !Supported(name) {
		return nil, "", errors.Wrapf(ErrUnsupported, "%q", src)
	}
	dst, err := spoolPath(spoolDir, name)
	if err != nil {
		return nil, "", err
	}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     detected,
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeFile,
		Getters: getters(),
	}
	if err := client.Get(); err != nil {
		os.Remove(dst)
		return nil, "", errors.Wrapf(err, "failed to fetch deck %s", src)
	}
	if info, err := os.Stat(dst); err != nil || info.Size() == 0 {
		os.Remove(dst)
		return nil, "", errors.Wrapf(ErrEmpty, "%s", src)
	}
	return pipeline.NewTempFile(dst), name, nil
}

// getters are go-getter's defaults with local files copied, not symlinked,
// so releasing the spooled deck never touches the source.
func getters() map[string]getter.Getter {
	out := make(map[string]getter.Getter, len(getter.Getters))
	for k, g := range getter.Getters {
		out[k] = g
	}
	out["file"] = &getter.FileGetter{Copy: true}
	return out
}

// deckName is the last path segment of a detected source, without the
// forced-getter prefix or query.
func deckName(detected string) string {
	if i := strings.Index(detected, "::"); i >= 0 && !strings.Contains(detected[:i], "/") {
		detected = detected[i+2:]
	}
	if u, err := url.Parse(detected); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(detected)
}
