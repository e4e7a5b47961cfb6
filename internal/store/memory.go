package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in process memory. It backs the test
// suite and local development without a database.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]map[string][]byte // collection -> id -> json
	order map[string][]string          // insertion order per collection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]map[string][]byte),
		order: make(map[string][]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, collection string, doc any) (string, error) {
	raw, id, err := encodeDoc(doc)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string][]byte)
	}
	if _, exists := s.docs[collection][id]; !exists {
		s.order[collection] = append(s.order[collection], id)
	}
	s.docs[collection][id] = raw
	return id, nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged, err := applyPatch(raw, patch)
	if err != nil {
		return err
	}
	s.docs[collection][id] = merged
	return nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string, out any) error {
	s.mu.Lock()
	raw, ok := s.docs[collection][id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (s *MemoryStore) List(_ context.Context, collection string, filter map[string]any, out any) error {
	s.mu.Lock()
	ids := append([]string(nil), s.order[collection]...)
	rows := make([]document, 0, len(ids))
	for _, id := range ids {
		raw := s.docs[collection][id]
		if matchesFilter(raw, filter) {
			rows = append(rows, document{Collection: collection, ID: id, Data: raw})
		}
	}
	s.mu.Unlock()
	return decodeRows(rows, out)
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.docs[collection], id)
	order := s.order[collection]
	for i, v := range order {
		if v == id {
			s.order[collection] = append(order[:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func matchesFilter(raw []byte, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := fields[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
