package storage

import (
	"cmp"
	"slices"
	"sync"

	"github.com/luikyv/go-authority/pkg/goidc"
)

// findFirst returns the first element in a slice for which the condition is true.
// If no element is found, 'ok' is set to false.
func findFirst[T any](slice []T, condition func(T) bool) (element T, ok bool) {
	for _, element = range slice {
		if condition(element) {
			return element, true
		}
	}

	var zero T
	return zero, false
}

// expiredEntries returns a page of the entries that expired before the
// timestamp, oldest first.
func expiredEntries(entries []goidc.ExpiredEntry, before, offset, limit int) []goidc.ExpiredEntry {
	expired := make([]goidc.ExpiredEntry, 0)
	for _, e := range entries {
		if e.ExpiresAtTimestamp != 0 && e.ExpiresAtTimestamp < before {
			expired = append(expired, e)
		}
	}

	slices.SortFunc(expired, func(a, b goidc.ExpiredEntry) int {
		return cmp.Or(cmp.Compare(a.ExpiresAtTimestamp, b.ExpiresAtTimestamp), cmp.Compare(a.ID, b.ID))
	})
	expired = expired[min(offset, len(expired)):]
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	return expired
}

// store is a concurrency safe map of entities kept by value.
type store[T any] struct {
	mu       sync.RWMutex
	entities map[string]T
	// entry projects an entity into what the expiration index needs.
	entry func(T) goidc.ExpiredEntry
}

func newStore[T any](entry func(T) goidc.ExpiredEntry) *store[T] {
	return &store[T]{
		entities: make(map[string]T),
		entry:    entry,
	}
}

func (s *store[T]) save(id string, entity T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[id] = entity
}

// saveIf saves the entity after check accepted the current one. check is
// called under the store lock.
func (s *store[T]) saveIf(id string, entity T, check func(current T, exists bool) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entities[id]
	if err := check(current, exists); err != nil {
		return err
	}

	s.entities[id] = entity
	return nil
}

func (s *store[T]) get(id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, exists := s.entities[id]
	if !exists {
		return entity, goidc.ErrNotFound
	}
	return entity, nil
}

// consume removes and returns the entity in a single step.
func (s *store[T]) consume(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, exists := s.entities[id]
	if !exists {
		return entity, goidc.ErrNotFound
	}
	delete(s.entities, id)
	return entity, nil
}

func (s *store[T]) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entities, id)
}

// deleteExpired removes the entity if it can still be swept. The check and
// the delete happen under the same lock.
func (s *store[T]) deleteExpired(id string, before int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, exists := s.entities[id]
	if !exists || !goidc.IsSweepable(s.entry(entity), before) {
		return false
	}
	delete(s.entities, id)
	return true
}

func (s *store[T]) deleteWhere(condition func(T) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entity := range s.entities {
		if condition(entity) {
			delete(s.entities, id)
		}
	}
}

func (s *store[T]) first(condition func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := make([]T, 0, len(s.entities))
	for _, entity := range s.entities {
		entities = append(entities, entity)
	}

	return findFirst(entities, condition)
}

func (s *store[T]) filter(condition func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := make([]T, 0)
	for _, entity := range s.entities {
		if condition(entity) {
			entities = append(entities, entity)
		}
	}
	return entities
}

func (s *store[T]) expired(before, offset, limit int) []goidc.ExpiredEntry {
	s.mu.RLock()
	entries := make([]goidc.ExpiredEntry, 0, len(s.entities))
	for _, entity := range s.entities {
		entries = append(entries, s.entry(entity))
	}
	s.mu.RUnlock()

	return expiredEntries(entries, before, offset, limit)
}

func (s *store[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entities)
}
