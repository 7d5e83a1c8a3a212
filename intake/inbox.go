package intake

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/pulse/async"
)

// DefaultDebounce is how long a dropped file must be quiet before it is taken.
const DefaultDebounce = 500 * time.Millisecond

// Inbox watches a drop folder and submits every deck that lands in it as an
// analysis job. Taken decks are moved into the spool directory.
type Inbox struct {
	dir      string
	spoolDir string
	queue    *async.Queue
	debounce time.Duration
	logger   *zap.SugaredLogger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewInbox creates an inbox for dir. Nothing is watched until Start.
func NewInbox(dir, spoolDir string, queue *async.Queue, log *zap.SugaredLogger) (*Inbox, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if filepath.Clean(dir) == filepath.Clean(spoolDir) {
		return nil, errors.Newf("inbox %s cannot also be the spool directory", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create inbox %s", dir)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch inbox %s", dir)
	}
	return &Inbox{
		dir:      dir,
		spoolDir: spoolDir,
		queue:    queue,
		debounce: DefaultDebounce,
		logger:   log.Named("inbox"),
		watcher:  watcher,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// SetDebounce changes the quiet period. Call before Start.
func (in *Inbox) SetDebounce(d time.Duration) { in.debounce = d }

// Start submits decks already in the folder, then watches for new ones.
func (in *Inbox) Start() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Warnw("Could not scan inbox", logger.FieldError, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			in.schedule(filepath.Join(in.dir, e.Name()))
		}
	}
	in.wg.Add(1)
	go in.watchLoop()
	in.logger.Infow("Inbox watching", "dir", in.dir)
}

// Stop ends watching and cancels pending submissions.
func (in *Inbox) Stop() error {
	in.mu.Lock()
	in.stopped = true
	for path, t := range in.timers {
		t.Stop()
		delete(in.timers, path)
	}
	in.mu.Unlock()
	err := in.watcher.Close()
	in.wg.Wait()
	return err
}

func (in *Inbox) watchLoop() {
	defer in.wg.Done()
	for {
		select {
		case event, ok := <-in.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				in.schedule(event.Name)
			}
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return
			}
			in.logger.Warnw("Inbox watcher error", logger.FieldError, err)
		}
	}
}

// schedule debounces events per file; a file still being written keeps
// pushing its submission back.
func (in *Inbox) schedule(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !Supported(name) {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopped {
		return
	}
	if t, ok := in.timers[path]; ok {
		t.Reset(in.debounce)
		return
	}
	in.timers[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.timers, path)
		stopped := in.stopped
		in.mu.Unlock()
		if stopped {
			return
		}
		if err := in.take(path); err != nil {
			in.logger.Errorw("Failed to submit dropped deck", logger.FieldFile, name, logger.FieldError, err)
		}
	})
}

// take spools the file at path, removes it from the inbox and submits it.
func (in *Inbox) take(path string) error {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "open %s", name)
	}
	deck, err := Materialize(f, name, in.spoolDir)
	f.Close()
	if err != nil {
		return err
	}

	caseID, jobID, err := deal.Submit(in.queue, deal.Input{
		Source:       "inbox",
		ArtifactPath: deck.Path(),
		FileName:     name,
	})
	if err != nil {
		deck.Release()
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		in.logger.Warnw("Could not remove taken deck", logger.FieldFile, name, logger.FieldError, err)
	}
	in.logger.Infow("Deck submitted", logger.FieldFile, name, logger.FieldCaseID, caseID, logger.FieldJobID, jobID)
	return nil
}
