// Package intake watches a drop directory laid out as <root>/<userID>/<file>
// and hands every settled file to the document pipeline for that user.
// Ingested files are moved into the user's .processed directory; files the
// pipeline rejects go to .failed.
package intake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// Directories inside a user directory that hold handled files.
const (
	ProcessedDir = ".processed"
	FailedDir    = ".failed"
)

// DefaultDebounce is how long a file must stay unchanged before ingestion.
const DefaultDebounce = 500 * time.Millisecond

// MaxFileSize bounds a single dropped file.
const MaxFileSize = 64 << 20

// ErrClosed is returned by Run on a watcher that already ran.
var ErrClosed = errors.New("intake: watcher closed")

// Watcher ingests files dropped into per-user directories.
type Watcher struct {
	root     string
	pipeline driving.Pipeline
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// New creates a watcher over root. A non-positive debounce uses DefaultDebounce.
func New(root string, pipeline driving.Pipeline, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     filepath.Clean(root),
		pipeline: pipeline,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. Files already present are ingested
// first. Pending ingestions finish before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.mu.Unlock()

	if err := os.MkdirAll(w.root, 0700); err != nil {
		return fmt.Errorf("creating intake directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.root); err != nil {
		return fmt.Errorf("watching %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("reading intake directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			w.watchUser(ctx, fsw, filepath.Join(w.root, e.Name()))
		}
	}
	logger.Info("intake: watching %s", w.root)

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				w.shutdown()
				return nil
			}
			switch w.classify(ev) {
			case eventUserDir:
				w.watchUser(ctx, fsw, ev.Name)
			case eventFile:
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				w.shutdown()
				return nil
			}
			logger.Warn("intake: watcher error: %v", err)
		}
	}
}

type eventKind int

const (
	eventIgnored eventKind = iota
	eventUserDir
	eventFile
)

// classify decides what an fsnotify event means for the intake layout.
func (w *Watcher) classify(ev fsnotify.Event) eventKind {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return eventIgnored
	}
	userID, name, ok := w.split(ev.Name)
	if !ok {
		return eventIgnored
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return eventIgnored
	}
	switch {
	case name == "" && info.IsDir() && ev.Has(fsnotify.Create):
		return eventUserDir
	case userID != "" && name != "" && info.Mode().IsRegular():
		return eventFile
	default:
		return eventIgnored
	}
}

// split maps path to its user and file name. A user directory yields an
// empty name. Paths deeper than <user>/<file> or with hidden parts are
// rejected.
func (w *Watcher) split(path string) (userID, name string, ok bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for _, p := range parts {
		if hidden(p) {
			return "", "", false
		}
	}
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}

func (w *Watcher) watchUser(ctx context.Context, fsw *fsnotify.Watcher, dir string) {
	if err := fsw.Add(dir); err != nil {
		logger.Warn("intake: watching %s: %v", dir, err)
		return
	}
	// Files can land before the watch is in place.
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("intake: reading %s: %v", dir, err)
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() && !hidden(e.Name()) {
			w.schedule(ctx, filepath.Join(dir, e.Name()))
		}
	}
}

// schedule (re)starts the quiet-period timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		w.ingest(ctx, path)
	})
	w.timers[path] = t
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	userID, name, ok := w.split(path)
	if !ok || name == "" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		// Moved or removed during the quiet period.
		return
	}
	if info.Size() == 0 {
		return
	}
	if info.Size() > MaxFileSize {
		logger.Warn("intake: %s exceeds %d bytes", path, MaxFileSize)
		w.move(path, FailedDir)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("intake: reading %s: %v", path, err)
		return
	}

	rec, err := w.pipeline.Upload(ctx, driving.UploadRequest{
		OwnerID: userID,
		Name:    name,
		Data:    data,
	})
	if err == nil {
		err = w.pipeline.Enqueue(ctx, rec.ID)
	}
	if err != nil {
		logger.Warn("intake: ingesting %s for %s: %v", name, userID, err)
		w.move(path, FailedDir)
		return
	}
	logger.Info("intake: %s queued as %s for %s", name, rec.ID, userID)
	w.move(path, ProcessedDir)
}

// move renames path into the named sibling directory, prefixing the name
// with a timestamp so repeated drops of one file name do not collide.
func (w *Watcher) move(path, dir string) {
	target := filepath.Join(filepath.Dir(path), dir)
	if err := os.MkdirAll(target, 0700); err != nil {
		logger.Warn("intake: creating %s: %v", target, err)
		return
	}
	dest := filepath.Join(target, time.Now().UTC().Format("20060102T150405.000000000Z")+"-"+filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		logger.Warn("intake: moving %s: %v", path, err)
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
