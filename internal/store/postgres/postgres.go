// Package postgres implements the entity store on PostgreSQL via pgx. All
// snapshots live in a single entities table keyed by (kind, id) with a
// version column; commit performs a compare-and-set per staged entity inside
// one database transaction, so a concurrent writer surfaces as
// sentinel.ErrConflict with nothing applied.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"registryd/internal/store"
	"registryd/pkg/platform/sentinel"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
    kind    text   NOT NULL,
    id      text   NOT NULL,
    version bigint NOT NULL,
    data    jsonb  NOT NULL,
    PRIMARY KEY (kind, id)
);`

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a pgx pool. The pool's lifetime belongs to the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the entities table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgtx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer pgtx.Rollback(ctx)

	tx := &pgTx{tx: pgtx, reads: make(map[store.Key]int64), writes: make(map[store.Key][]byte), deletes: make(map[store.Key]bool)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.flush(ctx); err != nil {
		return asConflict(err)
	}
	if err := pgtx.Commit(ctx); err != nil {
		return asConflict(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// asConflict folds the database's own concurrency verdicts (serialization
// failure, deadlock) into the store's conflict sentinel so callers retry
// them the same way as a failed compare-and-set.
func asConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%v: %w", err, sentinel.ErrConflict)
		}
	}
	return err
}

func (s *Store) Read(ctx context.Context, key store.Key) (*store.Entity, error) {
	return readRow(ctx, s.pool, key)
}

func (s *Store) Query(ctx context.Context, kind store.Kind, filter func(*store.Entity) bool) ([]*store.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, id, version, data FROM entities WHERE kind = $1 ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()
	return collect(rows, filter, nil)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readRow(ctx context.Context, q querier, key store.Key) (*store.Entity, error) {
	ent := &store.Entity{Key: key}
	err := q.QueryRow(ctx,
		`SELECT version, data FROM entities WHERE kind = $1 AND id = $2`,
		string(key.Kind), key.ID).Scan(&ent.Version, &ent.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return ent, nil
}

func collect(rows pgx.Rows, filter func(*store.Entity) bool, observe func(*store.Entity)) ([]*store.Entity, error) {
	var out []*store.Entity
	for rows.Next() {
		ent := &store.Entity{}
		var kind string
		if err := rows.Scan(&kind, &ent.Key.ID, &ent.Version, &ent.Data); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ent.Key.Kind = store.Kind(kind)
		if filter == nil || filter(ent) {
			if observe != nil {
				observe(ent)
			}
			out = append(out, ent)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

type pgTx struct {
	tx      pgx.Tx
	reads   map[store.Key]int64
	writes  map[store.Key][]byte
	deletes map[store.Key]bool
}

func (t *pgTx) Get(ctx context.Context, key store.Key) (*store.Entity, error) {
	if t.deletes[key] {
		return nil, fmt.Errorf("get %s: %w", key, sentinel.ErrNotFound)
	}
	if data, ok := t.writes[key]; ok {
		return &store.Entity{Key: key, Version: t.reads[key], Data: data}, nil
	}
	ent, err := readRow(ctx, t.tx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			t.recordRead(key, 0)
		}
		return nil, err
	}
	t.recordRead(key, ent.Version)
	return ent, nil
}

func (t *pgTx) Put(ctx context.Context, key store.Key, data []byte) error {
	if err := t.ensureRead(ctx, key); err != nil {
		return err
	}
	delete(t.deletes, key)
	t.writes[key] = append([]byte(nil), data...)
	return nil
}

func (t *pgTx) Delete(ctx context.Context, key store.Key) error {
	if err := t.ensureRead(ctx, key); err != nil {
		return err
	}
	delete(t.writes, key)
	t.deletes[key] = true
	return nil
}

func (t *pgTx) Query(ctx context.Context, kind store.Kind, filter func(*store.Entity) bool) ([]*store.Entity, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT kind, id, version, data FROM entities WHERE kind = $1 ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()
	scanned, err := collect(rows, nil, nil)
	if err != nil {
		return nil, err
	}

	var out []*store.Entity
	for _, ent := range scanned {
		if t.deletes[ent.Key] {
			continue
		}
		if data, ok := t.writes[ent.Key]; ok {
			ent = &store.Entity{Key: ent.Key, Version: ent.Version, Data: data}
		}
		if filter == nil || filter(ent) {
			t.recordRead(ent.Key, ent.Version)
			out = append(out, ent)
		}
	}
	for key, data := range t.writes {
		if key.Kind != kind || containsKey(out, key) {
			continue
		}
		ent := &store.Entity{Key: key, Version: 0, Data: data}
		if filter == nil || filter(ent) {
			out = append(out, ent)
		}
	}
	return out, nil
}

// flush applies staged changes with per-entity compare-and-set. Affected-row
// counts of zero mean a concurrent commit got there first.
func (t *pgTx) flush(ctx context.Context) error {
	for key := range t.deletes {
		tag, err := t.tx.Exec(ctx,
			`DELETE FROM entities WHERE kind = $1 AND id = $2 AND version = $3`,
			string(key.Kind), key.ID, t.reads[key])
		if err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 && t.reads[key] != 0 {
			return fmt.Errorf("delete %s: %w", key, sentinel.ErrConflict)
		}
	}
	for key, data := range t.writes {
		readVersion := t.reads[key]
		if readVersion == 0 {
			tag, err := t.tx.Exec(ctx,
				`INSERT INTO entities (kind, id, version, data) VALUES ($1, $2, 1, $3)
				 ON CONFLICT (kind, id) DO NOTHING`,
				string(key.Kind), key.ID, data)
			if err != nil {
				return fmt.Errorf("insert %s: %w", key, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("insert %s: %w", key, sentinel.ErrConflict)
			}
			continue
		}
		tag, err := t.tx.Exec(ctx,
			`UPDATE entities SET data = $4, version = version + 1
			 WHERE kind = $1 AND id = $2 AND version = $3`,
			string(key.Kind), key.ID, readVersion, data)
		if err != nil {
			return fmt.Errorf("update %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update %s: %w", key, sentinel.ErrConflict)
		}
	}
	// Reads that were never written still gate the commit.
	for key, readVersion := range t.reads {
		if _, written := t.writes[key]; written {
			continue
		}
		if t.deletes[key] {
			continue
		}
		live := int64(0)
		ent, err := readRow(ctx, t.tx, key)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if ent != nil {
			live = ent.Version
		}
		if live != readVersion {
			return fmt.Errorf("verify %s: version %d read, %d live: %w",
				key, readVersion, live, sentinel.ErrConflict)
		}
	}
	return nil
}

// recordRead pins the first observed version for a key.
func (t *pgTx) recordRead(key store.Key, version int64) {
	if _, ok := t.reads[key]; !ok {
		t.reads[key] = version
	}
}

func (t *pgTx) ensureRead(ctx context.Context, key store.Key) error {
	if _, ok := t.reads[key]; ok {
		return nil
	}
	ent, err := readRow(ctx, t.tx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			t.reads[key] = 0
			return nil
		}
		return err
	}
	t.reads[key] = ent.Version
	return nil
}

func containsKey(ents []*store.Entity, key store.Key) bool {
	for _, e := range ents {
		if e.Key == key {
			return true
		}
	}
	return false
}
