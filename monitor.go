package groupby

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// monitorDebounce coalesces event bursts per path; editors often emit
// several writes for one save.
const monitorDebounce = 100 * time.Millisecond

// Monitor invalidates builds automatically when tracked dependency
// files change on disk. It watches the parent directories of every
// fingerprinted file of valid builds, debounces events per path, and
// feeds the survivors into Engine.Invalidate.
//
// The monitor watches the real filesystem. Engines running on a
// memory filesystem should call Invalidate directly instead.
type Monitor struct {
	eng     *Engine
	watcher *fsnotify.Watcher
	events  chan string

	mu     sync.Mutex
	timers map[string]*time.Timer
	dirs   map[string]struct{}

	done chan struct{}
	once sync.Once
}

// Monitor starts dependency monitoring and returns its handle.
func (eng *Engine) Monitor() (*Monitor, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start monitor: %w", err)
	}
	m := &Monitor{
		eng:     eng,
		watcher: w,
		events:  make(chan string, 64),
		timers:  make(map[string]*time.Timer),
		dirs:    make(map[string]struct{}),
		done:    make(chan struct{}),
	}
	m.Rearm()
	go m.loop()
	return m, nil
}

// Rearm re-reads the dependency sets of valid builds and extends the
// watched directory set; call it after rebuilds so new dependencies
// are picked up. Directories are never unwatched: one that stops
// mattering just produces events that invalidate nothing.
func (m *Monitor) Rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.eng.Watchers() {
		r := w.entry.result()
		if r == nil {
			continue
		}
		for _, f := range r.deps.filePaths() {
			dir := filepath.Dir(f)
			if _, ok := m.dirs[dir]; ok {
				continue
			}
			if err := m.watcher.Add(dir); err != nil {
				m.eng.log.Debug("monitor cannot watch", "dir", dir, "error", err)
				continue
			}
			m.dirs[dir] = struct{}{}
		}
	}
}

// Events returns the invalidating paths after debouncing, for hosts
// that rebuild on change. Sends are dropped when nobody listens, so
// ignoring the channel is fine.
func (m *Monitor) Events() <-chan string { return m.events }

// Stop tears the monitor down. Pending debounce timers may still fire
// but no longer deliver.
func (m *Monitor) Stop() {
	m.once.Do(func() {
		close(m.done)
		_ = m.watcher.Close()
	})
}

func (m *Monitor) loop() {
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			m.debounce(ev.Name)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.eng.log.Debug("monitor error", "error", err)
		}
	}
}

func (m *Monitor) debounce(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[path]; ok {
		t.Reset(monitorDebounce)
		return
	}
	m.timers[path] = time.AfterFunc(monitorDebounce, func() {
		m.mu.Lock()
		delete(m.timers, path)
		m.mu.Unlock()
		m.fire(path)
	})
}

func (m *Monitor) fire(path string) {
	select {
	case <-m.done:
		return
	default:
	}
	if n := m.eng.Invalidate(path); n > 0 {
		m.eng.log.Info("dependency changed", "path", path, "stale", n)
	}
	select {
	case m.events <- path:
	default:
	}
}
