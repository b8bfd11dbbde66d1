package stepdiag

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// watchedExtensions are the file kinds whose changes trigger a re-run.
var watchedExtensions = map[string]bool{
	FeatureExtension: true,
	".js":            true,
	".mjs":           true,
	".cjs":           true,
	".ts":            true,
	".tsx":           true,
}

// skippedDirNames are never watched.
var skippedDirNames = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Watcher re-runs diagnostics when the project's feature files, step
// definitions or configuration change. Filesystem events are debounced; an
// optional cron schedule adds a polling fallback for filesystems where
// change notification is unreliable.
type Watcher struct {
	diag     *Diagnostics
	log      Logger
	watcher  *fsnotify.Watcher
	cron     *cron.Cron
	debounce time.Duration

	onResult func(*DiagnosticResult)
	onError  func(error)

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the engine's project. onResult receives
// every successful re-run's result; onError receives failed runs. Either
// callback may be nil. Watch mode keeps running after a failed run, since
// the broken file is usually the one about to be fixed.
func NewWatcher(diag *Diagnostics, onResult func(*DiagnosticResult), onError func(error)) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}
	debounce, err := diag.Config().Watch.DebounceInterval()
	if err != nil {
		_ = notifier.Close()
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		diag:     diag,
		log:      diag.log,
		watcher:  notifier,
		debounce: debounce,
		onResult: onResult,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start registers the directory watches and the optional cron schedule, then
// begins processing events.
func (w *Watcher) Start() error {
	if err := w.addWatches(w.diag.Config().ProjectRoot); err != nil {
		return err
	}
	if schedule := w.diag.Config().Watch.Schedule; schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return fmt.Errorf("invalid watch schedule %q: %w", schedule, err)
		}
		w.cron = cron.New()
		if _, err := w.cron.AddFunc(schedule, func() { w.runOnce("schedule") }); err != nil {
			return fmt.Errorf("registering watch schedule: %w", err)
		}
		w.cron.Start()
		w.log.Info("watch schedule registered", "schedule", schedule)
	}

	w.wg.Add(1)
	go w.processEvents()
	w.log.Info("watching for changes", "root", w.diag.Config().ProjectRoot, "debounce", w.debounce.String())
	return nil
}

// Stop halts watching. Idempotent; safe to call from any goroutine.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		if w.cron != nil {
			<-w.cron.Stop().Done()
		}
		if err := w.watcher.Close(); err != nil {
			w.log.Warn("closing filesystem watcher", "error", err)
		}
		w.wg.Wait()
		w.log.Info("watcher stopped")
	})
}

// addWatches registers every directory below root, skipping VCS internals
// and dependency trees.
func (w *Watcher) addWatches(root string) error {
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if skippedDirNames[name] || (strings.HasPrefix(name, ".") && path != root) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.log.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("registering watches under %s: %w", root, err)
	}
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("filesystem watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// A created directory needs its own watch before events inside it arrive.
	if event.Op&fsnotify.Create != 0 && isDirectory(event.Name) {
		if !skippedDirNames[filepath.Base(event.Name)] {
			if err := w.watcher.Add(event.Name); err != nil {
				w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}
	if !w.relevantFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.log.Debug("change detected", "path", event.Name, "op", event.Op.String())
	w.scheduleRun()
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// relevantFile reports whether a change to path can affect the diagnostic
// result.
func (w *Watcher) relevantFile(path string) bool {
	if watchedExtensions[filepath.Ext(path)] {
		return true
	}
	base := filepath.Base(path)
	if base == packageManifest || base == dotEnvFile {
		return true
	}
	for _, name := range configFileNames {
		if base == name {
			return true
		}
	}
	return false
}

// scheduleRun arms the debounce timer, coalescing bursts of events into one
// re-run.
func (w *Watcher) scheduleRun() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.runOnce("filesystem") })
}

// runOnce performs one re-run and delivers the outcome to the callbacks.
func (w *Watcher) runOnce(origin string) {
	if w.ctx.Err() != nil {
		return
	}
	w.diag.emit(w.ctx, EventTypeWatchTriggered, map[string]interface{}{"origin": origin})
	w.diag.bundles.Purge()

	result, err := w.diag.Run(w.ctx)
	if err != nil {
		w.log.Error("diagnostic run failed", "origin", origin, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	if w.onResult != nil {
		w.onResult(result)
	}
}
