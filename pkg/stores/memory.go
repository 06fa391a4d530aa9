package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// MemoryStore implements engine.RegistrationStore in process memory.
// Registrations do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]engine.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]engine.Record),
	}
}

// ListRegistrations implements engine.RegistrationStore.
func (m *MemoryStore) ListRegistrations(_ context.Context, principal string) ([]engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := []engine.Record{}
	for _, rec := range m.records {
		if principal == "" || rec.Principal == principal {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// GetRegistration implements engine.RegistrationStore.
func (m *MemoryStore) GetRegistration(_ context.Context, name string) (*engine.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return nil, engine.NewNotFoundError(fmt.Sprintf("storage backend %s is not registered", name), nil).WithBackend(name)
	}
	out := rec
	return &out, nil
}

// CreateRegistration implements engine.RegistrationStore.
func (m *MemoryStore) CreateRegistration(_ context.Context, rec engine.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Name]; ok {
		return engine.NewConflictError(fmt.Sprintf("storage backend %s is already registered", rec.Name), nil).WithBackend(rec.Name)
	}
	m.records[rec.Name] = rec
	return nil
}

// UpdateRegistration implements engine.RegistrationStore.
func (m *MemoryStore) UpdateRegistration(_ context.Context, rec engine.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Name]; !ok {
		return engine.NewNotFoundError(fmt.Sprintf("storage backend %s is not registered", rec.Name), nil).WithBackend(rec.Name)
	}
	m.records[rec.Name] = rec
	return nil
}

// DeleteRegistration implements engine.RegistrationStore.
func (m *MemoryStore) DeleteRegistration(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[name]; !ok {
		return engine.NewNotFoundError(fmt.Sprintf("storage backend %s is not registered", name), nil).WithBackend(name)
	}
	delete(m.records, name)
	return nil
}

// CountRegistrations returns the number of registered backends.
func (m *MemoryStore) CountRegistrations(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
