package infra

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/eliteGoblin/applockd/internal/domain"
)

// mockProcessManager is a test double for domain.ProcessManager.
type mockProcessManager struct {
	mu            sync.Mutex
	runningPIDs   map[int]bool
	killedPIDs    []int
	suspendedPIDs map[int]bool
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs:   make(map[int]bool),
		suspendedPIDs: make(map[int]bool),
	}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	return nil, nil
}

func (m *mockProcessManager) Processes() (map[int]string, error) {
	return map[int]string{}, nil
}

func (m *mockProcessManager) Terminate(pid int) error {
	return m.Kill(pid)
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) Suspend(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.runningPIDs[pid] {
		return fmt.Errorf("process does not exist: %d", pid)
	}
	m.suspendedPIDs[pid] = true
	return nil
}

func (m *mockProcessManager) Resume(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.suspendedPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsSuspended(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspendedPIDs[pid]
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningPIDs[pid] = running
}

// Ensure mockProcessManager implements domain.ProcessManager.
var _ domain.ProcessManager = (*mockProcessManager)(nil)

// mockCommandRunner records commands and serves scripted outputs.
type mockCommandRunner struct {
	mu       sync.Mutex
	commands [][]string
	runErrs  []error
	outputs  [][]byte
	outErrs  []error
}

func (m *mockCommandRunner) Run(name string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, append([]string{name}, args...))
	if len(m.runErrs) > 0 {
		err := m.runErrs[0]
		m.runErrs = m.runErrs[1:]
		return err
	}
	return nil
}

func (m *mockCommandRunner) Output(name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, append([]string{name}, args...))
	var out []byte
	if len(m.outputs) > 0 {
		out = m.outputs[0]
		m.outputs = m.outputs[1:]
	}
	if len(m.outErrs) > 0 {
		err := m.outErrs[0]
		m.outErrs = m.outErrs[1:]
		return out, err
	}
	return out, nil
}

func (m *mockCommandRunner) commandCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands)
}

// memorySecretStore is an in-memory domain.SecretStore for tests that
// do not need a real encrypted database.
type memorySecretStore struct {
	mu      sync.Mutex
	secrets map[string]string
}

func newMemorySecretStore() *memorySecretStore {
	return &memorySecretStore{secrets: make(map[string]string)}
}

func (m *memorySecretStore) GetSecret(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.secrets[key]
	if !ok {
		return "", fmt.Errorf("secret %q not found", key)
	}
	return v, nil
}

func (m *memorySecretStore) SetSecret(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
	return nil
}

func (m *memorySecretStore) DeleteSecret(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, key)
	return nil
}

func (m *memorySecretStore) Close() error { return nil }

// Ensure memorySecretStore implements domain.SecretStore.
var _ domain.SecretStore = (*memorySecretStore)(nil)

// mockDaemonRegistry is a test double for domain.DaemonRegistry.
type mockDaemonRegistry struct {
	mu           sync.Mutex
	entry        *domain.RegistryEntry
	heartbeats   int
	registryPath string
}

func newMockDaemonRegistry() *mockDaemonRegistry {
	return &mockDaemonRegistry{registryPath: "/tmp/mock-registry"}
}

func (m *mockDaemonRegistry) Register(daemon domain.Daemon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry = &domain.RegistryEntry{
		Version:       1,
		PID:           daemon.PID,
		StartedAt:     daemon.StartedAt.Unix(),
		LastHeartbeat: time.Now().Unix(),
		Strategy:      daemon.Strategy,
		AppVersion:    daemon.AppVersion,
	}
	return nil
}

func (m *mockDaemonRegistry) Lookup() (*domain.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entry, nil
}

func (m *mockDaemonRegistry) UpdateHeartbeat(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats++
	if m.entry != nil {
		m.entry.LastHeartbeat = time.Now().Unix()
	}
	return nil
}

func (m *mockDaemonRegistry) Unregister(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry != nil && m.entry.PID == pid {
		m.entry = nil
	}
	return nil
}

func (m *mockDaemonRegistry) GetRegistryPath() string {
	return m.registryPath
}

// Ensure mockDaemonRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*mockDaemonRegistry)(nil)
