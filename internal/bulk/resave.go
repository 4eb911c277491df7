// Package bulk rewrites stored resources in batches, materializing temporal
// projections into the persisted form. Projection keeps reads correct
// without it, but materializing after scheduled transitions pass (transfer
// deadlines, expirations) keeps raw store scans and exports honest.
package bulk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"registryd/internal/model"
	"registryd/internal/store"
)

// Resaver walks resource kinds batch by batch and re-saves each resource's
// projected state. Each batch is one transaction; a conflicting concurrent
// write fails only that batch.
type Resaver struct {
	store     store.Store
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// Option configures a Resaver.
type Option func(*Resaver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resaver) { r.now = now }
}

// New constructs a Resaver.
func New(st store.Store, log *slog.Logger, batchSize int, opts ...Option) *Resaver {
	if batchSize <= 0 {
		batchSize = 100
	}
	r := &Resaver{store: st, logger: log, batchSize: batchSize, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Stats reports what one run touched.
type Stats struct {
	Scanned int
	Resaved int
}

// Run resaves every host, domain, and contact. The three kinds run
// concurrently; batches within a kind run sequentially.
func (r *Resaver) Run(ctx context.Context) (Stats, error) {
	g, ctx := errgroup.WithContext(ctx)

	results := make([]Stats, 3)
	for i, kind := range []store.Kind{store.KindHost, store.KindDomain, store.KindContact} {
		g.Go(func() error {
			stats, err := r.resaveKind(ctx, kind)
			if err != nil {
				return fmt.Errorf("resave %s: %w", kind, err)
			}
			results[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	var total Stats
	for _, stats := range results {
		total.Scanned += stats.Scanned
		total.Resaved += stats.Resaved
	}
	return total, nil
}

func (r *Resaver) resaveKind(ctx context.Context, kind store.Kind) (Stats, error) {
	entities, err := r.store.Query(ctx, kind, nil)
	if err != nil {
		return Stats{}, err
	}
	ids := make([]string, 0, len(entities))
	for _, ent := range entities {
		ids = append(ids, ent.Key.ID)
	}

	stats := Stats{Scanned: len(ids)}
	for start := 0; start < len(ids); start += r.batchSize {
		end := min(start+r.batchSize, len(ids))
		resaved, err := r.resaveBatch(ctx, kind, ids[start:end])
		if err != nil {
			return stats, err
		}
		stats.Resaved += resaved
	}
	r.logger.InfoContext(ctx, "bulk resave pass complete",
		"kind", string(kind), "scanned", stats.Scanned, "resaved", stats.Resaved)
	return stats, nil
}

func (r *Resaver) resaveBatch(ctx context.Context, kind store.Kind, ids []string) (int, error) {
	resaved := 0
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		resaved = 0
		now := r.now()
		for _, id := range ids {
			key := store.Key{Kind: kind, ID: id}
			changed, err := r.resaveOne(ctx, tx, kind, key, now)
			if err != nil {
				return err
			}
			if changed {
				resaved++
			}
		}
		return nil
	})
	return resaved, err
}

func (r *Resaver) resaveOne(ctx context.Context, tx store.Tx, kind store.Kind, key store.Key, now time.Time) (bool, error) {
	switch kind {
	case store.KindHost:
		host, err := store.Get[model.Host](ctx, tx, key)
		if store.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !host.ActiveAt(now) {
			return false, nil
		}
		return true, store.Put(ctx, tx, key, host.ProjectAt(now))
	case store.KindDomain:
		domain, err := store.Get[model.Domain](ctx, tx, key)
		if store.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !domain.ActiveAt(now) {
			return false, nil
		}
		return true, store.Put(ctx, tx, key, domain.ProjectAt(now))
	case store.KindContact:
		contact, err := store.Get[model.Contact](ctx, tx, key)
		if store.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !contact.ActiveAt(now) {
			return false, nil
		}
		return true, store.Put(ctx, tx, key, contact.ProjectAt(now))
	default:
		return false, nil
	}
}
