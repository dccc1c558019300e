// Package sideinput provides stores that serve materialised side inputs to
// processors. Both stores satisfy engine.SideInputReader.
package sideinput

import (
	"context"
	"fmt"
	"sort"
	"sync"

	errspkg "github.com/drblury/procflow/internal/runtime/errors"
)

// MapStore keeps side inputs in memory.
type MapStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMapStore returns a store holding a copy of values.
func NewMapStore(values map[string]any) *MapStore {
	s := &MapStore{values: make(map[string]any, len(values))}
	for tag, v := range values {
		s.values[tag] = v
	}
	return s
}

// Put sets the value of tag.
func (s *MapStore) Put(tag string, value any) {
	s.mu.Lock()
	s.values[tag] = value
	s.mu.Unlock()
}

// Delete removes tag.
func (s *MapStore) Delete(tag string) {
	s.mu.Lock()
	delete(s.values, tag)
	s.mu.Unlock()
}

// Tags returns the stored tags in sorted order.
func (s *MapStore) Tags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make([]string, 0, len(s.values))
	for tag := range s.values {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Lookup returns the value of tag, or an error wrapping
// ErrSideInputNotFound.
func (s *MapStore) Lookup(ctx context.Context, tag string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	v, ok := s.values[tag]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrSideInputNotFound, tag)
	}
	return v, nil
}
