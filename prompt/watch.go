package prompt

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tidegui/tide-core/logger"
)

// reloadDebounce coalesces the burst of fsnotify events an editor save
// produces into a single reload.
const reloadDebounce = 300 * time.Millisecond

// Watcher hot-reloads a detector's rule set when its rules file changes.
// Editors typically replace files via rename, so the parent directory is
// watched rather than the file itself.
type Watcher struct {
	detector *Detector
	path     string
	fsW      *fsnotify.Watcher
	cancel   chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// WatchRules starts watching path and installs the rules into detector on
// every change. The file does not need to exist yet; the detector keeps its
// current rules until a loadable file appears.
func WatchRules(detector *Detector, path string) (*Watcher, error) {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsW.Add(filepath.Dir(path)); err != nil {
		fsW.Close()
		return nil, err
	}

	w := &Watcher{
		detector: detector,
		path:     path,
		fsW:      fsW,
		cancel:   make(chan struct{}),
	}

	go w.loop()
	return w, nil
}

// Close stops watching. Safe to call once.
func (w *Watcher) Close() {
	close(w.cancel)
	w.fsW.Close()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
}

func (w *Watcher) loop() {
	log := logger.WithComponent("prompt-rules")

	for {
		select {
		case <-w.cancel:
			return

		case event, ok := <-w.fsW.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.fsW.Errors:
			if !ok {
				return
			}
			log.Warn("rules watcher error", "error", err)
		}
	}
}

// scheduleReload debounces event bursts into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	log := logger.WithComponent("prompt-rules")

	if err := w.detector.LoadRulesFile(w.path); err != nil {
		// Keep the previous rules; a half-written file is expected mid-save.
		log.Warn("rules reload failed, keeping previous rules", "path", w.path, "error", err)
		return
	}
	log.Info("rules reloaded", "path", w.path)
}
