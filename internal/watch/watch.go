// Package watch turns an inbox directory into a stream of documents to process.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/AvishManiar21/user-story-automation/internal/document"
	"github.com/AvishManiar21/user-story-automation/internal/ignore"
)

// DefaultSettle is how long a file must stay unchanged before it is handled.
const DefaultSettle = 750 * time.Millisecond

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Handler processes one document. Errors are logged and do not stop the watcher.
type Handler func(ctx context.Context, path string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle sets the quiet period before a file is handled.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher handles documents dropped into a directory, one at a time.
type Watcher struct {
	dir     string
	handler Handler
	settle  time.Duration
	logger  *zap.Logger
	now     func() time.Time
	ignore  *ignore.Matcher
}

// New returns a Watcher for dir.
func New(dir string, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     dir,
		handler: handler,
		settle:  DefaultSettle,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done. Documents already present when Run starts
// are handled first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating inbox %s: %w", w.dir, err)
	}
	w.reloadIgnore()
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox", zap.String("dir", w.dir))

	pending := make(map[string]time.Time)
	if err := w.seed(pending); err != nil {
		return err
	}

	tick := time.NewTicker(w.settle / 3)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) == ignore.DefaultFile {
				w.reloadIgnore()
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					delete(pending, ev.Name)
				}
				continue
			}
			if w.accept(ev.Name) {
				pending[ev.Name] = w.now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-tick.C:
			w.flush(ctx, pending)
		}
	}
}

func (w *Watcher) seed(pending map[string]time.Time) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading inbox %s: %w", w.dir, err)
	}
	seen := w.now().Add(-w.settle)
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if !e.IsDir() && w.accept(path) {
			pending[path] = seen
		}
	}
	return nil
}

func (w *Watcher) flush(ctx context.Context, pending map[string]time.Time) {
	cutoff := w.now().Add(-w.settle)
	for path, seen := range pending {
		if seen.After(cutoff) {
			continue
		}
		delete(pending, path)
		if ctx.Err() != nil {
			return
		}
		w.handle(ctx, path)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.logger.Info("processing document", zap.String("path", path))
	start := time.Now()
	if err := w.handler(ctx, path); err != nil {
		w.logger.Error("document processing failed",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	w.logger.Info("document processed",
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)))
}

// reloadIgnore reads the folder's ignore file. A broken file keeps the
// previous patterns.
func (w *Watcher) reloadIgnore() {
	m, err := ignore.Load(w.dir)
	if err != nil {
		w.logger.Warn("failed to read ignore file", zap.String("dir", w.dir), zap.Error(err))
		return
	}
	w.ignore = m
	w.logger.Debug("ignore rules loaded", zap.String("dir", w.dir), zap.Int("rules", m.Len()))
}

// accept skips hidden files, editor lock files, unsupported types and names
// listed in the ignore file.
func (w *Watcher) accept(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return document.Allowed(base) && !w.ignore.Match(base)
}
