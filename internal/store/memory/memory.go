// Package memory implements the entity store with an in-process map and a
// coarse lock. It is the unit-test double and the dev-mode backend; the
// concurrency semantics (read-version tracking, commit-time verification)
// match the postgres implementation exactly so flow tests exercise the real
// conflict behavior.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"registryd/internal/store"
	"registryd/pkg/platform/sentinel"
)

// Store is an in-memory store.Store.
type Store struct {
	mu       sync.Mutex
	entities map[store.Key]*store.Entity
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entities: make(map[store.Key]*store.Entity)}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx := &memTx{store: s, reads: make(map[store.Key]int64), writes: make(map[store.Key][]byte), deletes: make(map[store.Key]bool)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) Read(ctx context.Context, key store.Key) (*store.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entities[key]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", key, sentinel.ErrNotFound)
	}
	return cloneEntity(ent), nil
}

func (s *Store) Query(ctx context.Context, kind store.Kind, filter func(*store.Entity) bool) ([]*store.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanLocked(kind, filter), nil
}

func (s *Store) scanLocked(kind store.Kind, filter func(*store.Entity) bool) []*store.Entity {
	var out []*store.Entity
	for key, ent := range s.entities {
		if key.Kind != kind {
			continue
		}
		if filter == nil || filter(ent) {
			out = append(out, cloneEntity(ent))
		}
	}
	slices.SortFunc(out, func(a, b *store.Entity) int {
		if a.Key.ID < b.Key.ID {
			return -1
		}
		if a.Key.ID > b.Key.ID {
			return 1
		}
		return 0
	})
	return out
}

// commit verifies every recorded read version against the live map, then
// applies all staged changes under the same lock. Any mismatch applies
// nothing.
func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, readVersion := range tx.reads {
		live := int64(0)
		if ent, ok := s.entities[key]; ok {
			live = ent.Version
		}
		if live != readVersion {
			return fmt.Errorf("commit %s: version %d read, %d live: %w",
				key, readVersion, live, sentinel.ErrConflict)
		}
	}
	for key := range tx.deletes {
		delete(s.entities, key)
	}
	for key, data := range tx.writes {
		version := int64(1)
		if old, ok := s.entities[key]; ok {
			version = old.Version + 1
		}
		s.entities[key] = &store.Entity{Key: key, Version: version, Data: slices.Clone(data)}
	}
	return nil
}

type memTx struct {
	store   *Store
	reads   map[store.Key]int64
	writes  map[store.Key][]byte
	deletes map[store.Key]bool
}

func (t *memTx) Get(ctx context.Context, key store.Key) (*store.Entity, error) {
	if t.deletes[key] {
		return nil, fmt.Errorf("get %s: %w", key, sentinel.ErrNotFound)
	}
	if data, ok := t.writes[key]; ok {
		return &store.Entity{Key: key, Version: t.reads[key], Data: slices.Clone(data)}, nil
	}
	t.store.mu.Lock()
	ent, ok := t.store.entities[key]
	t.store.mu.Unlock()
	if !ok {
		t.recordRead(key, 0)
		return nil, fmt.Errorf("get %s: %w", key, sentinel.ErrNotFound)
	}
	t.recordRead(key, ent.Version)
	return cloneEntity(ent), nil
}

func (t *memTx) Put(ctx context.Context, key store.Key, data []byte) error {
	t.ensureRead(key)
	delete(t.deletes, key)
	t.writes[key] = slices.Clone(data)
	return nil
}

func (t *memTx) Delete(ctx context.Context, key store.Key) error {
	t.ensureRead(key)
	delete(t.writes, key)
	t.deletes[key] = true
	return nil
}

func (t *memTx) Query(ctx context.Context, kind store.Kind, filter func(*store.Entity) bool) ([]*store.Entity, error) {
	t.store.mu.Lock()
	scanned := t.store.scanLocked(kind, nil)
	t.store.mu.Unlock()

	var out []*store.Entity
	for _, ent := range scanned {
		if t.deletes[ent.Key] {
			continue
		}
		if data, ok := t.writes[ent.Key]; ok {
			ent = &store.Entity{Key: ent.Key, Version: ent.Version, Data: slices.Clone(data)}
		}
		if filter == nil || filter(ent) {
			t.recordRead(ent.Key, versionOf(t, ent))
			out = append(out, ent)
		}
	}
	// Staged creates are visible to the scan as well.
	for key, data := range t.writes {
		if key.Kind != kind {
			continue
		}
		if containsKey(out, key) {
			continue
		}
		ent := &store.Entity{Key: key, Version: 0, Data: slices.Clone(data)}
		if filter == nil || filter(ent) {
			out = append(out, ent)
		}
	}
	return out, nil
}

func versionOf(t *memTx, ent *store.Entity) int64 {
	if v, ok := t.reads[ent.Key]; ok {
		return v
	}
	return ent.Version
}

func containsKey(ents []*store.Entity, key store.Key) bool {
	for _, e := range ents {
		if e.Key == key {
			return true
		}
	}
	return false
}

// recordRead pins the first observed version; later observations within the
// same transaction must not overwrite it.
func (t *memTx) recordRead(key store.Key, version int64) {
	if _, ok := t.reads[key]; !ok {
		t.reads[key] = version
	}
}

// ensureRead records the live version of a key about to be written so blind
// writes still participate in the conflict check.
func (t *memTx) ensureRead(key store.Key) {
	if _, ok := t.reads[key]; ok {
		return
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if ent, ok := t.store.entities[key]; ok {
		t.reads[key] = ent.Version
	} else {
		t.reads[key] = 0
	}
}

func cloneEntity(ent *store.Entity) *store.Entity {
	return &store.Entity{Key: ent.Key, Version: ent.Version, Data: slices.Clone(ent.Data)}
}
