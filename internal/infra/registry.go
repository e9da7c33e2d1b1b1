package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eliteGoblin/applockd/internal/domain"
)

const (
	registryDir      = "/var/tmp"
	registryFileName = "applockd.registry.json"
)

// FileRegistry implements domain.DaemonRegistry using a JSON file
// guarded by flock. It is how the CLI commands (status/stop/reload)
// find the running daemon.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates the default file-based daemon registry.
func NewFileRegistry(pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{
		path:           filepath.Join(registryDir, registryFileName),
		processManager: pm,
	}
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{path: path, processManager: pm}
}

// GetRegistryPath returns the registry file path.
func (r *FileRegistry) GetRegistryPath() string {
	return r.path
}

// Register saves the daemon's PID and metadata.
func (r *FileRegistry) Register(daemon domain.Daemon) error {
	return r.withLock(func() error {
		mode := "user"
		if os.Geteuid() == 0 {
			mode = "system"
		}

		entry := &domain.RegistryEntry{
			Version:       1,
			PID:           daemon.PID,
			StartedAt:     daemon.StartedAt.Unix(),
			LastHeartbeat: time.Now().Unix(),
			Mode:          mode,
			Strategy:      daemon.Strategy,
			AppVersion:    daemon.AppVersion,
		}
		return r.atomicWrite(entry)
	})
}

// Lookup returns the registered daemon entry, or nil if none.
func (r *FileRegistry) Lookup() (*domain.RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.RegistryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateHeartbeat refreshes the liveness timestamp for pid. Fails when
// a different daemon owns the registry.
func (r *FileRegistry) UpdateHeartbeat(pid int) error {
	return r.withLock(func() error {
		entry, err := r.Lookup()
		if err != nil {
			return err
		}
		if entry == nil || entry.PID != pid {
			return fmt.Errorf("daemon pid %d not registered", pid)
		}
		entry.LastHeartbeat = time.Now().Unix()
		return r.atomicWrite(entry)
	})
}

// Unregister removes the entry if it belongs to pid. A registry owned
// by another pid is left alone; a missing file is fine.
func (r *FileRegistry) Unregister(pid int) error {
	return r.withLock(func() error {
		entry, err := r.Lookup()
		if err != nil {
			return err
		}
		if entry == nil || entry.PID != pid {
			return nil
		}
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// IsDaemonAlive reports whether the registered daemon's pid is running.
func (r *FileRegistry) IsDaemonAlive() (bool, *domain.RegistryEntry) {
	entry, err := r.Lookup()
	if err != nil || entry == nil {
		return false, nil
	}
	return r.processManager.IsRunning(entry.PID), entry
}

// withLock runs fn under an exclusive flock so a restarting daemon and
// a CLI command cannot interleave their read-modify-write cycles.
func (r *FileRegistry) withLock(fn func() error) error {
	lockPath := r.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	return fn()
}

// atomicWrite writes the registry file atomically (write + rename).
func (r *FileRegistry) atomicWrite(entry *domain.RegistryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
