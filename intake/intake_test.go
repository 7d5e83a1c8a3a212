package intake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/errors"
	dftest "github.com/teranos/dealflow/internal/testing"
	"github.com/teranos/dealflow/pulse/async"
)

func TestSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"deck.pdf":     true,
		"Deck.PPTX":    true,
		"notes.md":     true,
		"pitch.txt":    true,
		"deck.key":     false,
		"deck":         false,
		"deck.pdf.zip": false,
	} {
		assert.Equal(t, want, Supported(name), name)
	}
}

func TestMaterializeSpoolsDeck(t *testing.T) {
	spool := t.TempDir()
	deck, err := Materialize(strings.NewReader("%PDF-1.4 snorlax"), "../../Snorlax Sleep Co.PDF", spool)
	require.NoError(t, err)

	assert.Equal(t, spool, filepath.Dir(deck.Path()))
	assert.True(t, strings.HasSuffix(deck.Path(), "-Snorlax_Sleep_Co.pdf"), deck.Path())
	data, err := os.ReadFile(deck.Path())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 snorlax", string(data))

	require.NoError(t, deck.Release())
	_, err = os.Stat(deck.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestMaterializeRejects(t *testing.T) {
	spool := t.TempDir()

	_, err := Materialize(strings.NewReader("data"), "deck.exe", spool)
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Materialize(strings.NewReader(""), "deck.pdf", spool)
	assert.True(t, errors.Is(err, ErrEmpty))

	entries, err := os.ReadDir(spool)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected decks leave nothing behind")
}

func TestFetchOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decks/eevee.pdf" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF eevee evolves"))
	}))
	defer srv.Close()

	deck, name, err := Fetch(context.Background(), srv.URL+"/decks/eevee.pdf", t.TempDir())
	require.NoError(t, err)
	defer deck.Release()

	assert.Equal(t, "eevee.pdf", name)
	data, err := os.ReadFile(deck.Path())
	require.NoError(t, err)
	assert.Equal(t, "%PDF eevee evolves", string(data))
}

func TestFetchLocalFileCopies(t *testing.T) {
	src := filepath.Join(t.TempDir(), "jigglypuff.md")
	require.NoError(t, os.WriteFile(src, []byte("# Jigglypuff Audio"), 0o600))

	deck, name, err := Fetch(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "jigglypuff.md", name)

	require.NoError(t, deck.Release())
	_, err = os.Stat(src)
	assert.NoError(t, err, "releasing the spooled copy keeps the source")
}

func TestFetchRejectsUnsupported(t *testing.T) {
	_, _, err := Fetch(context.Background(), "https://example.com/deck.key", t.TempDir())
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestDeckName(t *testing.T) {
	assert.Equal(t, "deck.pdf", deckName("https://example.com/a/deck.pdf?token=x"))
	assert.Equal(t, "deck.pptx", deckName("s3::https://s3.amazonaws.com/bucket/deck.pptx"))
	assert.Equal(t, "deck.md", deckName("file:///tmp/deck.md"))
}

func TestInboxSubmitsDroppedDecks(t *testing.T) {
	t.Log("Ash drops two decks and a photo of Pikachu into the inbox")
	queue := async.NewQueue(dftest.CreateMigratedDB(t))
	dir := filepath.Join(t.TempDir(), "inbox")
	spool := filepath.Join(t.TempDir(), "spool")

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.pdf"), []byte("%PDF already here"), 0o600))

	inbox, err := NewInbox(dir, spool, queue, zap.NewNop().Sugar())
	require.NoError(t, err)
	inbox.SetDebounce(20 * time.Millisecond)
	inbox.Start()
	defer inbox.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.pptx"), []byte("PK slides"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pikachu.jpg"), []byte("jpeg"), 0o600))

	var jobs []*async.Job
	require.Eventually(t, func() bool {
		jobs, err = queue.ListJobs(nil, 10)
		return err == nil && len(jobs) == 2
	}, 5*time.Second, 20*time.Millisecond)

	sources := map[string]bool{}
	for _, job := range jobs {
		assert.Equal(t, deal.HandlerName, job.HandlerName)
		var in deal.Input
		require.NoError(t, json.Unmarshal(job.Payload, &in))
		assert.Equal(t, "inbox", in.Source)
		assert.Equal(t, spool, filepath.Dir(in.ArtifactPath))
		_, statErr := os.Stat(in.ArtifactPath)
		assert.NoError(t, statErr)
		sources[in.FileName] = true
	}
	assert.Equal(t, map[string]bool{"early.pdf": true, "late.pptx": true}, sources)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "late.pptx"))
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond)
	_, err = os.Stat(filepath.Join(dir, "pikachu.jpg"))
	assert.NoError(t, err, "non-decks stay in the inbox")
}

func TestInboxRejectsSpoolAsInbox(t *testing.T) {
	dir := t.TempDir()
	_, err := NewInbox(dir, dir, nil, nil)
	assert.Error(t, err)
}
