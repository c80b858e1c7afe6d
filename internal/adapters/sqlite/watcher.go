package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/eduadmin/portal/internal/ports"
)

var _ ports.ChangeNotifier = (*Watcher)(nil)

const defaultDebounce = 150 * time.Millisecond

// Watcher turns writes to the SQLite file by other processes into change events.
// Every write already bumps the shared revision, so Publish has nothing to do.
type Watcher struct {
	backend  *Backend
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a Watcher for b. A non-positive debounce uses the default.
func NewWatcher(b *Backend, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{backend: b, debounce: debounce, logger: logger.With("component", "sqlite_watcher")}
}

// Publish is a no-op; see Watcher.
func (w *Watcher) Publish(context.Context, ports.ChangeEvent) error { return nil }

// Listen watches the database directory and calls fn for each settled change made by another origin.
// It blocks until ctx is done.
func (w *Watcher) Listen(ctx context.Context, fn func(ports.ChangeEvent)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	// SQLite writes journal and WAL siblings, so watch the directory and filter by name.
	dir := filepath.Dir(w.backend.Path())
	base := filepath.Base(w.backend.Path())
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	last, err := w.backend.Revision(ctx)
	if err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "fsnotify error", "error", err)

		case <-timer.C:
			rev, err := w.backend.Revision(ctx)
			if err != nil {
				w.logger.WarnContext(ctx, "read revision failed", "error", err)
				continue
			}
			if rev.Value == last.Value {
				continue
			}
			last = rev
			if rev.Origin == w.backend.origin {
				continue
			}
			fn(ports.ChangeEvent{Kind: rev.Kind, Origin: rev.Origin})
		}
	}
}
