package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registryd/internal/store"
	"registryd/internal/store/memory"
	"registryd/pkg/platform/sentinel"
)

type record struct {
	Name string `json:"name"`
}

func key(id string) store.Key {
	return store.Key{Kind: store.KindHost, ID: id}
}

func put(t *testing.T, s *memory.Store, k store.Key, v record) {
	t.Helper()
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return store.Put(ctx, tx, k, &v)
	})
	require.NoError(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put(t, s, key("1-TEST"), record{Name: "ns1.example.test"})

	got, err := store.Read[record](ctx, s, key("1-TEST"))
	require.NoError(t, err)
	assert.Equal(t, "ns1.example.test", got.Name)

	ent, err := s.Read(ctx, key("1-TEST"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), ent.Version)
}

func TestGetMissing(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	_, err := s.Read(ctx, key("nope"))
	assert.True(t, store.IsNotFound(err))

	err = s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Get(ctx, key("nope"))
		assert.True(t, store.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestVersionIncrementsPerCommit(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put(t, s, key("1-TEST"), record{Name: "a"})
	put(t, s, key("1-TEST"), record{Name: "b"})

	ent, err := s.Read(ctx, key("1-TEST"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), ent.Version)
}

func TestConflictOnConcurrentWrite(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put(t, s, key("1-TEST"), record{Name: "a"})

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := store.Get[record](ctx, tx, key("1-TEST")); err != nil {
			return err
		}
		// A second writer lands between this transaction's read and commit.
		put(t, s, key("1-TEST"), record{Name: "b"})
		return store.Put(ctx, tx, key("1-TEST"), &record{Name: "c"})
	})
	require.ErrorIs(t, err, sentinel.ErrConflict)

	got, err := store.Read[record](ctx, s, key("1-TEST"))
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name, "the losing transaction applied nothing")
}

func TestConflictOnReadAbsenceThenCreate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Get(ctx, key("1-TEST"))
		require.True(t, store.IsNotFound(err))
		// Another writer creates the key this transaction observed absent.
		put(t, s, key("1-TEST"), record{Name: "other"})
		return store.Put(ctx, tx, key("1-TEST"), &record{Name: "mine"})
	})
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestNoPartialApplicationOnConflict(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put(t, s, key("1-TEST"), record{Name: "a"})

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := store.Get[record](ctx, tx, key("1-TEST")); err != nil {
			return err
		}
		if err := store.Put(ctx, tx, key("2-TEST"), &record{Name: "new"}); err != nil {
			return err
		}
		put(t, s, key("1-TEST"), record{Name: "b"})
		return store.Put(ctx, tx, key("1-TEST"), &record{Name: "c"})
	})
	require.ErrorIs(t, err, sentinel.ErrConflict)

	_, err = s.Read(ctx, key("2-TEST"))
	assert.True(t, store.IsNotFound(err), "sibling write must not leak out of the aborted commit")
}

func TestTxReadsOwnWrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := store.Put(ctx, tx, key("1-TEST"), &record{Name: "staged"}); err != nil {
			return err
		}
		got, err := store.Get[record](ctx, tx, key("1-TEST"))
		require.NoError(t, err)
		assert.Equal(t, "staged", got.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put(t, s, key("1-TEST"), record{Name: "a"})

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Delete(ctx, key("1-TEST")); err != nil {
			return err
		}
		_, err := tx.Get(ctx, key("1-TEST"))
		assert.True(t, store.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)

	_, err = s.Read(ctx, key("1-TEST"))
	assert.True(t, store.IsNotFound(err))
}

func TestQuerySeesStagedWrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put(t, s, key("1-TEST"), record{Name: "committed"})
	put(t, s, store.Key{Kind: store.KindDomain, ID: "9-TEST"}, record{Name: "other kind"})

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := store.Put(ctx, tx, key("2-TEST"), &record{Name: "staged create"}); err != nil {
			return err
		}
		if err := store.Put(ctx, tx, key("1-TEST"), &record{Name: "staged update"}); err != nil {
			return err
		}
		ents, err := tx.Query(ctx, store.KindHost, nil)
		require.NoError(t, err)
		require.Len(t, ents, 2)

		names := make(map[string]string)
		for _, ent := range ents {
			rec, err := store.Decode[record](ent)
			require.NoError(t, err)
			names[ent.Key.ID] = rec.Name
		}
		assert.Equal(t, "staged update", names["1-TEST"])
		assert.Equal(t, "staged create", names["2-TEST"])
		return nil
	})
	require.NoError(t, err)
}

func TestQueryFilterRecordsReadVersions(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put(t, s, key("1-TEST"), record{Name: "match"})

	err := s.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ents, err := tx.Query(ctx, store.KindHost, func(ent *store.Entity) bool {
			rec, err := store.Decode[record](ent)
			return err == nil && rec.Name == "match"
		})
		require.NoError(t, err)
		require.Len(t, ents, 1)
		// The queried entity changes under the transaction.
		put(t, s, key("1-TEST"), record{Name: "changed"})
		return store.Put(ctx, tx, key("2-TEST"), &record{Name: "dependent"})
	})
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestQueryOrderedByID(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put(t, s, key("3-TEST"), record{Name: "c"})
	put(t, s, key("1-TEST"), record{Name: "a"})
	put(t, s, key("2-TEST"), record{Name: "b"})

	ents, err := s.Query(ctx, store.KindHost, nil)
	require.NoError(t, err)
	require.Len(t, ents, 3)
	assert.Equal(t, "1-TEST", ents[0].Key.ID)
	assert.Equal(t, "2-TEST", ents[1].Key.ID)
	assert.Equal(t, "3-TEST", ents[2].Key.ID)
}
