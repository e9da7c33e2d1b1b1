package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the burst of filesystem events an editor or
// atomic rename produces into one reload.
const reloadDebounce = 100 * time.Millisecond

// Store owns the live configuration. Readers get an immutable snapshot;
// reloads swap the snapshot atomically under the lock. A failed initial
// load degrades to defaults (which protect nothing) rather than stopping
// the daemon; a failed reload keeps the previous snapshot.
type Store struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	current *Config

	subMu       sync.Mutex
	subscribers []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewStore creates a store bound to the given config file path. The file
// does not need to exist yet.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Load performs the initial read. Never fails: a broken file logs an
// error and yields defaults so the daemon comes up unlocked rather than
// not at all.
func (s *Store) Load() *Config {
	cfg, err := Load(s.path)
	if err != nil {
		s.logger.Error("config load failed, using defaults with no targets",
			zap.String("path", s.path),
			zap.Error(err))
		cfg = Default()
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return cfg
}

// Current returns the live snapshot. Safe for concurrent use; callers
// must not mutate the result.
func (s *Store) Current() *Config {
	s.mu.RLock()
	cfg := s.current
	s.mu.RUnlock()
	if cfg == nil {
		return s.Load()
	}
	return cfg
}

// Reload re-reads the file and swaps the snapshot on success. On error
// the previous snapshot stays live and the error is returned.
func (s *Store) Reload() error {
	cfg, err := Load(s.path)
	if err != nil {
		s.logger.Warn("config reload failed, keeping previous config",
			zap.String("path", s.path),
			zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	s.logger.Info("config reloaded",
		zap.Int("targets", len(cfg.Targets.Entries)),
		zap.String("match", cfg.Targets.Match),
		zap.Duration("grace", cfg.Lock.Grace.Std()))

	s.notify(cfg)
	return nil
}

// Save persists cfg and makes it the live snapshot without waiting for
// the watcher to notice the write.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Normalize()

	if err := cfg.Save(s.path); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()

	s.notify(cfg)
	return nil
}

// OnChange registers fn to run after every successful reload or save.
// Callbacks run on the reloading goroutine; keep them fast.
func (s *Store) OnChange(fn func(*Config)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notify(cfg *Config) {
	s.subMu.Lock()
	subs := make([]func(*Config), len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
}

// Watch starts reloading on filesystem changes to the config file. The
// parent directory is watched because editors and atomic saves replace
// the file rather than writing in place.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	s.watcher = watcher
	s.wg.Add(1)
	go s.watchLoop()
	return nil
}

// Stop halts the watcher. Safe to call when Watch was never started.
func (s *Store) Stop() {
	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.wg.Wait()
}

func (s *Store) watchLoop() {
	defer s.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce: editors fire several events per save.
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(reloadDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := s.Reload(); err != nil {
				s.logger.Debug("watcher reload failed", zap.Error(err))
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
