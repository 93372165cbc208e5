// Package watch raises working-copy-changed notifications for changes
// made to a repository by tools other than this process.
package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sergeknystautas/hgrun/internal/notify"
)

// triggers are the files under .hg whose writes mean the working-copy
// parent, branch or bookmark may have moved.
var triggers = []string{"dirstate", "branch", "bookmarks", "bookmarks.current", "undo.dirstate"}

// DirstateWatcher watches the .hg directory of each added repository and
// notifies once per burst of writes.
type DirstateWatcher struct {
	watcher  *fsnotify.Watcher
	notifier notify.Notifier
	debounce time.Duration
	logger   *zap.Logger

	// watched maps a .hg directory to its repository root.
	watched   map[string]string
	watchedMu sync.Mutex

	timers   map[string]*time.Timer
	timersMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a watcher. Call Start to begin delivering events.
func New(n notify.Notifier, debounce time.Duration, logger *zap.Logger) (*DirstateWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirstateWatcher{
		watcher:  w,
		notifier: n,
		debounce: debounce,
		logger:   logger.Named("watch"),
		watched:  make(map[string]string),
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the event loop goroutine.
func (dw *DirstateWatcher) Start() {
	go dw.eventLoop()
	dw.logger.Debug("started")
}

// Stop closes the watcher and cancels pending notifications.
// Safe to call multiple times.
func (dw *DirstateWatcher) Stop() {
	dw.stopOnce.Do(func() {
		close(dw.stopCh)
		dw.watcher.Close()

		dw.timersMu.Lock()
		for _, t := range dw.timers {
			t.Stop()
		}
		dw.timersMu.Unlock()
		dw.logger.Debug("stopped")
	})
}

// Add starts watching the repository rooted at repoRoot.
func (dw *DirstateWatcher) Add(repoRoot string) error {
	hgDir := filepath.Join(repoRoot, ".hg")
	info, err := os.Stat(hgDir)
	if err != nil {
		return fmt.Errorf("no .hg found: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", hgDir)
	}

	dw.watchedMu.Lock()
	_, exists := dw.watched[hgDir]
	dw.watched[hgDir] = repoRoot
	dw.watchedMu.Unlock()
	if exists {
		return nil
	}

	if err := dw.watcher.Add(hgDir); err != nil {
		dw.watchedMu.Lock()
		delete(dw.watched, hgDir)
		dw.watchedMu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", hgDir, err)
	}
	dw.logger.Info("watching", zap.String("repo", repoRoot))
	return nil
}

// Remove stops watching repoRoot and drops any pending notification.
func (dw *DirstateWatcher) Remove(repoRoot string) {
	hgDir := filepath.Join(repoRoot, ".hg")
	dw.watchedMu.Lock()
	_, ok := dw.watched[hgDir]
	delete(dw.watched, hgDir)
	dw.watchedMu.Unlock()
	if ok {
		if err := dw.watcher.Remove(hgDir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			dw.logger.Warn("failed to unwatch", zap.String("repo", repoRoot), zap.Error(err))
		}
	}

	dw.timersMu.Lock()
	if t, ok := dw.timers[repoRoot]; ok {
		t.Stop()
		delete(dw.timers, repoRoot)
	}
	dw.timersMu.Unlock()
}

// Watched returns the watched repository roots, sorted.
func (dw *DirstateWatcher) Watched() []string {
	dw.watchedMu.Lock()
	defer dw.watchedMu.Unlock()
	roots := make([]string, 0, len(dw.watched))
	for _, r := range dw.watched {
		roots = append(roots, r)
	}
	slices.Sort(roots)
	return roots
}

func (dw *DirstateWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			dw.handleEvent(event)
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.logger.Warn("watch error", zap.Error(err))
		case <-dw.stopCh:
			return
		}
	}
}

func (dw *DirstateWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}
	if !slices.Contains(triggers, filepath.Base(event.Name)) {
		return
	}
	dw.watchedMu.Lock()
	repo, ok := dw.watched[filepath.Dir(event.Name)]
	dw.watchedMu.Unlock()
	if ok {
		dw.resetDebounce(repo)
	}
}

func (dw *DirstateWatcher) resetDebounce(repo string) {
	dw.timersMu.Lock()
	defer dw.timersMu.Unlock()

	if t, ok := dw.timers[repo]; ok {
		t.Reset(dw.debounce)
		return
	}
	dw.timers[repo] = time.AfterFunc(dw.debounce, func() {
		dw.timersMu.Lock()
		delete(dw.timers, repo)
		dw.timersMu.Unlock()

		select {
		case <-dw.stopCh:
			return
		default:
		}
		dw.logger.Debug("working copy changed externally", zap.String("repo", repo))
		dw.notifier.WorkingCopyChanged(repo)
	})
}
