// Package memory provides an in-process DocumentStore.
// Used for local development and tests; data is lost on restart.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/port"

	"github.com/google/uuid"
)

type collection struct {
	docs  map[string]json.RawMessage
	order []string
}

// Store keeps documents per collection in insertion order.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]json.RawMessage)}
		s.collections[name] = c
	}
	return c
}

// Get returns a copy of the document or ErrNotFound.
func (s *Store) Get(_ context.Context, collection, id string) (*port.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: collection, ID: id}
	}
	data, ok := c.docs[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: collection, ID: id}
	}
	return &port.Document{ID: id, Data: clone(data)}, nil
}

// Query returns the documents whose top-level fields equal every filter value.
func (s *Store) Query(_ context.Context, collection string, filters ...port.Filter) ([]port.Document, error) {
	want := make(map[string][]byte, len(filters))
	for _, f := range filters {
		b, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		want[f.Field] = b
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]port.Document, 0)
	c, ok := s.collections[collection]
	if !ok {
		return docs, nil
	}
	for _, id := range c.order {
		data := c.docs[id]
		match, err := matches(data, want)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		if match {
			docs = append(docs, port.Document{ID: id, Data: clone(data)})
		}
	}
	return docs, nil
}

// Set overwrites or creates the document.
func (s *Store) Set(_ context.Context, collection, id string, data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("set %s/%s: invalid json", collection, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(collection)
	if _, exists := c.docs[id]; !exists {
		c.order = append(c.order, id)
	}
	c.docs[id] = clone(data)
	return nil
}

// Add stores the document under a new uuid.
func (s *Store) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Delete removes the document. Deleting a missing id is not an error.
func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	if _, exists := c.docs[id]; !exists {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func matches(data json.RawMessage, want map[string][]byte) (bool, error) {
	if len(want) == 0 {
		return true, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return false, err
	}
	for field, expected := range want {
		raw, ok := fields[field]
		if !ok {
			return false, nil
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return false, err
		}
		if !bytes.Equal(buf.Bytes(), expected) {
			return false, nil
		}
	}
	return true, nil
}

func clone(data json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
