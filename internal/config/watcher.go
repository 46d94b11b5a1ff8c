package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads the configuration file on change and notifies listeners.
type Watcher struct {
	path     string
	onChange func(*Config)

	mu      sync.Mutex
	lastMod time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewWatcher watches path and invokes onChange with each successfully
// reloaded and validated Config. Invalid reloads are logged and skipped so
// a half-written file never takes down a running gateway.
func NewWatcher(path string, onChange func(*Config)) *Watcher {
	w := &Watcher{path: path, onChange: onChange, stopCh: make(chan struct{})}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// Start begins watching. It prefers fsnotify and falls back to polling.
func (w *Watcher) Start() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create file watcher, falling back to polling")
		go w.poll()
		return
	}

	// Watch the directory too so atomic renames are observed.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		log.WithError(err).WithField("path", w.path).Warn("failed to watch config directory, falling back to polling")
		watcher.Close()
		go w.poll()
		return
	}
	_ = watcher.Add(w.path)

	log.WithField("path", w.path).Info("config watcher started using fsnotify")

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		const debounceDuration = 100 * time.Millisecond

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDuration, w.checkAndReload)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config watcher error")

			case <-w.stopCh:
				if debounce != nil {
					debounce.Stop()
				}
				return
			}
		}
	}()
}

// Stop terminates the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stopCh) })
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.checkAndReload()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) checkAndReload() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	stale := info.ModTime().After(w.lastMod)
	if stale {
		w.lastMod = info.ModTime()
	}
	w.mu.Unlock()
	if !stale {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		log.WithError(err).WithField("path", w.path).Warn("failed to reload config, keeping previous")
		return
	}
	log.WithField("path", w.path).Info("configuration reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
