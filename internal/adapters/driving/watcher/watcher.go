// Package watcher keeps the index in step with a directory: new and
// modified files are ingested, removed files are deleted.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// DefaultDebounce is how long a file must be quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// ChangeType classifies a filesystem event.
type ChangeType int

// Change types.
const (
	ChangeCreated ChangeType = iota + 1
	ChangeUpdated
	ChangeDeleted
)

func (c ChangeType) String() string {
	switch c {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is a filesystem event relevant to the index.
type Change struct {
	Type ChangeType
	Path string
}

// Options configures a Watcher.
type Options struct {
	// Recursive watches subdirectories, including ones created later.
	Recursive bool

	// Debounce coalesces bursts of writes to one file (default: 500ms).
	Debounce time.Duration
}

// Watcher mirrors a directory into the ingestion service.
type Watcher struct {
	svc       driving.IngestionService
	root      string
	opts      Options
	supported map[string]bool
	fsw       *fsnotify.Watcher

	mu     sync.Mutex
	docs   map[string]string // path -> document id
	timers map[string]*time.Timer

	due     chan string
	done    chan struct{}
	applied chan Change
}

// New creates a watcher on root. Only files with an extension the
// ingestion service supports are considered.
func New(svc driving.IngestionService, root string, opts Options) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", root)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	supported := make(map[string]bool)
	for _, ext := range svc.SupportedExtensions() {
		supported[strings.ToLower(ext)] = true
	}

	w := &Watcher{
		svc:       svc,
		root:      filepath.Clean(root),
		opts:      opts,
		supported: supported,
		fsw:       fsw,
		docs:      make(map[string]string),
		timers:    make(map[string]*time.Timer),
		due:       make(chan string, 64),
		done:      make(chan struct{}),
	}

	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and, when recursive, every visible subdirectory.
func (w *Watcher) addTree(dir string) error {
	if !w.opts.Recursive {
		return w.fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		logger.Debug("Watching %s", path)
		return nil
	})
}

// Sync ingests every supported file already present under the root.
func (w *Watcher) Sync(ctx context.Context) error {
	results, err := w.svc.IngestDirectory(ctx, w.root, w.opts.Recursive)
	if err != nil {
		return err
	}

	// IngestDirectory reports file names only; map them back to paths.
	byName := make(map[string][]string)
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			byName[d.Name()] = append(byName[d.Name()], path)
		}
		return nil
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range results {
		r := &results[i]
		paths := byName[r.Filename]
		if r.DocumentID == "" || (len(r.Errors) > 0 && r.ChunkCount == 0) || len(paths) == 0 {
			continue
		}
		w.docs[paths[0]] = r.DocumentID
		byName[r.Filename] = paths[1:]
	}
	logger.Info("Initial sync of %s: %d documents", w.root, len(w.docs))
	return nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)

		case path := <-w.due:
			w.reingest(ctx, path)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// Documents returns a copy of the tracked path to document id map.
func (w *Watcher) Documents() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.docs))
	for k, v := range w.docs {
		out[k] = v
	}
	return out
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) && w.opts.Recursive {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !isHidden(event.Name) {
			if err := w.addTree(event.Name); err != nil {
				logger.Warn("Cannot watch %s: %v", event.Name, err)
			}
			return
		}
	}

	change, ok := w.classify(event)
	if !ok {
		return
	}
	logger.Debug("File %s: %s", change.Type, change.Path)

	switch change.Type {
	case ChangeCreated, ChangeUpdated:
		w.schedule(change.Path)
	case ChangeDeleted:
		w.cancel(change.Path)
		w.remove(ctx, change.Path)
	}
}

// classify maps an fsnotify event to an index change. Directories,
// hidden files, chmod-only events and unsupported extensions are ignored.
func (w *Watcher) classify(event fsnotify.Event) (Change, bool) {
	path := event.Name
	if isHidden(path) || !w.supported[strings.ToLower(filepath.Ext(path))] {
		return Change{}, false
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return Change{Type: ChangeDeleted, Path: path}, true
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return Change{}, false
		}
		typ := ChangeUpdated
		if event.Has(fsnotify.Create) {
			typ = ChangeCreated
		}
		return Change{Type: typ, Path: path}, true
	default:
		return Change{}, false
	}
}

// schedule queues path for ingestion once writes to it settle.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A timer that already fired is replaced; re-arming it would send
	// path twice.
	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.opts.Debounce)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		select {
		case w.due <- path:
		case <-w.done:
		}
	})
	w.timers[path] = t
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

// reingest ingests the current content of path, then drops the
// document it replaces.
func (w *Watcher) reingest(ctx context.Context, path string) {
	res, err := w.svc.IngestFile(ctx, path)
	if err != nil {
		logger.Warn("Auto-ingest of %s failed: %v", path, err)
		return
	}

	w.mu.Lock()
	old := w.docs[path]
	w.docs[path] = res.DocumentID
	w.mu.Unlock()

	if old != "" && old != res.DocumentID {
		if _, err := w.svc.DeleteDocument(ctx, old); err != nil {
			logger.Warn("Removing previous version %s of %s failed: %v", old, path, err)
		}
	}
	logger.Info("Ingested %s as %s (%d chunks)", filepath.Base(path), res.DocumentID, res.ChunkCount)
	w.notify(Change{Type: ChangeUpdated, Path: path})
}

func (w *Watcher) remove(ctx context.Context, path string) {
	w.mu.Lock()
	id, ok := w.docs[path]
	delete(w.docs, path)
	w.mu.Unlock()
	if !ok {
		return
	}

	if _, err := w.svc.DeleteDocument(ctx, id); err != nil {
		logger.Warn("Deleting %s for removed %s failed: %v", id, path, err)
		return
	}
	logger.Info("Removed %s (%s)", filepath.Base(path), id)
	w.notify(Change{Type: ChangeDeleted, Path: path})
}

// notify reports an applied change to the Applied channel, if requested.
func (w *Watcher) notify(c Change) {
	w.mu.Lock()
	ch := w.applied
	w.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- c:
	default:
	}
}

// Applied returns a channel receiving each change once it reaches the
// index. Changes are dropped when the channel is full.
func (w *Watcher) Applied() <-chan Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.applied == nil {
		w.applied = make(chan Change, 16)
	}
	return w.applied
}

func (w *Watcher) close() {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	close(w.done)

	if err := w.fsw.Close(); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
		logger.Warn("Closing watcher: %v", err)
	}
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
