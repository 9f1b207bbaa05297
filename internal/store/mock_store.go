package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Abhio2i/TDF-sub001/internal/scene"
)

// MockStore is an in-memory implementation of Store for testing.
type MockStore struct {
	mu        sync.RWMutex
	scenarios map[string]storedScenario
}

type storedScenario struct {
	data      []byte
	updatedAt time.Time
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{scenarios: make(map[string]storedScenario)}
}

// Save stores an encoded copy of doc so later mutation by the caller has no effect.
func (m *MockStore) Save(_ context.Context, name string, doc scene.Document) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding scenario %s: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[name] = storedScenario{data: data, updatedAt: time.Now().UTC()}
	return nil
}

// Load decodes a fresh copy of the stored document.
func (m *MockStore) Load(_ context.Context, name string) (scene.Document, error) {
	m.mu.RLock()
	s, ok := m.scenarios[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	var doc scene.Document
	if err := json.Unmarshal(s.data, &doc); err != nil {
		return nil, fmt.Errorf("decoding scenario %s: %w", name, err)
	}
	return doc, nil
}

// List returns all stored scenarios sorted by name.
func (m *MockStore) List(_ context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.scenarios))
	for name, s := range m.scenarios {
		out = append(out, Info{Name: name, Size: int64(len(s.data)), UpdatedAt: s.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a scenario.
func (m *MockStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenarios[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.scenarios, name)
	return nil
}
