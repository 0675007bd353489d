package gatedata

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// overrides holds externally supplied catalog data. Nil fields fall back to
// the embedded defaults.
type overrides struct {
	catalog  uaCatalog
	profiles []BaseProfile
}

// Manager serves the UA catalog and base-profile catalog with optional
// external overrides and hot reload. Reads are lock-free via atomic.Value;
// the embedded data remains the fallback for anything an override file does
// not provide.
type Manager struct {
	dir     string
	watcher *fsnotify.Watcher
	current atomic.Value // *overrides
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex // serializes reloads
	closed  bool
}

// NewManager creates a data manager. With an empty dir only embedded data is
// served. With hotReload, changes to user-agents.json or base_profiles.json
// inside dir swap the catalogs at runtime.
func NewManager(dir string, hotReload bool) (*Manager, error) {
	m := &Manager{dir: dir, stopCh: make(chan struct{})}
	m.current.Store(&overrides{})

	if dir == "" {
		return m, nil
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	if !hotReload {
		return m, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	m.watcher = w
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.watchLoop()
	}()
	log.Info().Str("dir", dir).Msg("Watching data directory for catalog overrides")
	return m, nil
}

func (m *Manager) watchLoop() {
	for {
		select {
		case <-m.stopCh:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(ev.Name)
			if name != "user-agents.json" && name != "base_profiles.json" {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := m.reload(); err != nil {
				log.Warn().Err(err).Str("file", name).Msg("Catalog override reload failed, keeping previous data")
			} else {
				log.Info().Str("file", name).Msg("Catalog overrides reloaded")
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Data directory watcher error")
		}
	}
}

// reload re-reads whatever override files exist in the directory. A missing
// file simply leaves that catalog on its embedded default.
func (m *Manager) reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := &overrides{}
	if raw, err := os.ReadFile(filepath.Join(m.dir, "user-agents.json")); err == nil {
		cat, err := parseCatalog(raw)
		if err != nil {
			return err
		}
		next.catalog = cat
	}
	if raw, err := os.ReadFile(filepath.Join(m.dir, "base_profiles.json")); err == nil {
		var ps []BaseProfile
		if err := json.Unmarshal(raw, &ps); err != nil {
			return err
		}
		next.profiles = ps
	}
	m.current.Store(next)
	return nil
}

// ChooseUA resolves a UA selector against the override catalog first, then
// the embedded one.
func (m *Manager) ChooseUA(selector string) (string, error) {
	if ov := m.current.Load().(*overrides); ov.catalog != nil {
		if uas, ok := ov.catalog[selector]; ok && len(uas) > 0 {
			return uas[rand.Intn(len(uas))], nil
		}
	}
	return ChooseUA(selector)
}

// SelectBaseProfile picks a base profile for the OS family, preferring
// override profiles when present.
func (m *Manager) SelectBaseProfile(osFamily string) (*BaseProfile, error) {
	if ov := m.current.Load().(*overrides); len(ov.profiles) > 0 {
		var candidates []BaseProfile
		for _, p := range ov.profiles {
			for _, os := range p.OS {
				if os == osFamily {
					candidates = append(candidates, p)
					break
				}
			}
		}
		if len(candidates) == 0 {
			candidates = ov.profiles
		}
		pick := candidates[rand.Intn(len(candidates))]
		return &pick, nil
	}
	return SelectBaseProfile(osFamily)
}

// Close stops the watcher goroutine. Safe to call multiple times. The lock
// is released before waiting: the watch loop may be mid-reload and needs it
// to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}
