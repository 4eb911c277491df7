// Package store defines the transactional key-value store the flow engine
// runs against: versioned entity snapshots keyed by (kind, id), read inside
// the same transaction that commits the writes, with optimistic concurrency
// on every entity read.
//
// Implementations: store/memory (unit tests, dev mode) and store/postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"registryd/pkg/platform/sentinel"
)

// Kind partitions the entity keyspace.
type Kind string

const (
	KindHost         Kind = "host"
	KindDomain       Kind = "domain"
	KindContact      Kind = "contact"
	KindRegistrar    Kind = "registrar"
	KindHistory      Kind = "history"
	KindPollMessage  Kind = "poll"
	KindBillingEvent Kind = "billing"
	KindForeignKey   Kind = "fki"
)

// Key identifies one entity. For resources the id is the repository id; for
// foreign-key index entities it is FKIID(kind, foreignKey).
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string { return string(k.Kind) + "/" + k.ID }

// FKIID builds the id of the foreign-key index entity mapping a resource
// kind's foreign key (hostname, domain name, contact id) to its repo id.
func FKIID(kind Kind, foreignKey string) string {
	return string(kind) + "/" + foreignKey
}

// Entity is a versioned snapshot. Version increases by one per committed
// write and is the basis of the optimistic concurrency check.
type Entity struct {
	Key     Key
	Version int64
	Data    []byte
}

// Tx is a transaction handle. Get records the version of everything read
// (including absence); Put and Delete stage changes. At commit every
// recorded version is compared against the live store and any mismatch
// aborts the whole transaction with sentinel.ErrConflict, applying nothing.
type Tx interface {
	// Get returns the entity or sentinel.ErrNotFound, recording the observed
	// version either way.
	Get(ctx context.Context, key Key) (*Entity, error)

	// Put stages a create-or-update for commit.
	Put(ctx context.Context, key Key, data []byte) error

	// Delete stages a hard delete for commit. Deleting an unread key records
	// its current version first.
	Delete(ctx context.Context, key Key) error

	// Query scans a kind and returns entities accepted by the filter,
	// recording the version of each returned entity. A nil filter accepts
	// everything. The scan observes the transaction's staged writes.
	Query(ctx context.Context, kind Kind, filter func(*Entity) bool) ([]*Entity, error)
}

// Store is the transactional entity store.
type Store interface {
	// RunInTx executes fn in a transaction and commits iff fn returns nil.
	// A version mismatch at commit returns sentinel.ErrConflict with no
	// partial application; the caller may retry the whole operation.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Read returns a snapshot of one entity outside any transaction.
	Read(ctx context.Context, key Key) (*Entity, error)

	// Query scans a kind outside any transaction.
	Query(ctx context.Context, kind Kind, filter func(*Entity) bool) ([]*Entity, error)
}

// Get loads and decodes one entity inside a transaction.
func Get[T any](ctx context.Context, tx Tx, key Key) (*T, error) {
	ent, err := tx.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return decode[T](ent)
}

// Put encodes and stages one entity inside a transaction.
func Put[T any](ctx context.Context, tx Tx, key Key, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Put(ctx, key, data)
}

// Read loads and decodes one entity from a snapshot outside any transaction.
func Read[T any](ctx context.Context, s Store, key Key) (*T, error) {
	ent, err := s.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return decode[T](ent)
}

func decode[T any](ent *Entity) (*T, error) {
	var v T
	if err := json.Unmarshal(ent.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ent.Key, err)
	}
	return &v, nil
}

// Decode unmarshals an entity produced by a Query scan.
func Decode[T any](ent *Entity) (*T, error) { return decode[T](ent) }

// IsNotFound reports whether err is the store's absence sentinel.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, sentinel.ErrNotFound)
}
