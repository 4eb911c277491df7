// Package async runs the deferred deletion worker. Host and contact delete
// flows only mark the resource pendingDelete and enqueue a task; this worker
// re-checks referential safety after a grace delay and either completes the
// deletion or reverts the mark, notifying the requesting registrar by poll
// message either way.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"registryd/internal/flows"
	"registryd/internal/model"
	"registryd/internal/platform/metrics"
	"registryd/internal/queue"
	"registryd/internal/registries"
	"registryd/internal/store"
)

// Worker consumes deletion tasks and executes them transactionally.
type Worker struct {
	store        store.Store
	tasks        queue.Async
	dns          queue.DNS
	registries   *registries.Registries
	history      flows.HistoryPublisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	ids          flows.IDGenerator
	pollInterval time.Duration
	now          func() time.Time
}

// Option configures a Worker.
type Option func(*Worker)

// WithIDGenerator overrides entity id allocation, for deterministic tests.
func WithIDGenerator(ids flows.IDGenerator) Option {
	return func(w *Worker) { w.ids = ids }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithHistoryPublisher streams the worker's history entries like committed
// flow history.
func WithHistoryPublisher(pub flows.HistoryPublisher) Option {
	return func(w *Worker) { w.history = pub }
}

// New constructs a deletion worker.
func New(
	st store.Store,
	tasks queue.Async,
	dns queue.DNS,
	reg *registries.Registries,
	m *metrics.Metrics,
	log *slog.Logger,
	pollInterval time.Duration,
	opts ...Option,
) *Worker {
	w := &Worker{
		store:        st,
		tasks:        tasks,
		dns:          dns,
		registries:   reg,
		metrics:      m,
		logger:       log,
		ids:          flows.RandomIDs{},
		pollInterval: pollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run polls the deletion queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		progressed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "deletion task failed", "error", err.Error())
		}
		if progressed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce processes at most one ready task, reporting whether it made
// progress. Tasks whose grace delay has not elapsed are put back.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, ok, err := w.tasks.DequeueDeletion(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue deletion: %w", err)
	}
	if !ok {
		return false, nil
	}
	if w.now().Before(task.NotBefore) {
		if err := w.tasks.EnqueueDeletion(ctx, task); err != nil {
			return false, fmt.Errorf("requeue deletion: %w", err)
		}
		return false, nil
	}
	return true, w.process(ctx, task)
}

func (w *Worker) process(ctx context.Context, task queue.DeletionTask) error {
	switch task.ResourceKind {
	case "host":
		return w.processHost(ctx, task)
	case "contact":
		return w.processContact(ctx, task)
	default:
		w.logger.WarnContext(ctx, "dropping deletion task of unknown kind", "kind", task.ResourceKind)
		return nil
	}
}

// outcome is what one processed task decided, captured inside the
// transaction and released after commit.
type outcome struct {
	refreshes []queue.RefreshTask
	history   []model.HistoryEntry
}

func (w *Worker) processHost(ctx context.Context, task queue.DeletionTask) error {
	var out outcome
	err := w.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		out = outcome{}
		now := w.now()
		host, err := store.Get[model.Host](ctx, tx, store.Key{Kind: store.KindHost, ID: task.ResourceRepoID})
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !host.ActiveAt(now) || !host.HasStatus(model.StatusPendingDelete) {
			// The mark was lifted or the resource is already gone.
			return nil
		}

		referencing, err := domainsReferencingHost(ctx, tx, host.ForeignKey, now)
		if err != nil {
			return err
		}
		if len(referencing) > 0 {
			host.RemoveStatus(model.StatusPendingDelete)
			host.LastUpdateTime = now
			if err := store.Put(ctx, tx, store.Key{Kind: store.KindHost, ID: host.RepoID}, host); err != nil {
				return err
			}
			if err := w.notify(ctx, tx, &out, task, host.RepoID, now,
				model.HistoryHostDeleteFailure,
				fmt.Sprintf("Can't delete host %s because it is referenced by a domain.", host.ForeignKey)); err != nil {
				return err
			}
			return nil
		}

		if host.IsSubordinate() {
			superordinate, found, err := w.loadDomainByName(ctx, tx, host.SuperordinateDomain, now)
			if err != nil {
				return err
			}
			if found {
				superordinate.RemoveSubordinateHost(host.ForeignKey)
				if err := store.Put(ctx, tx, store.Key{Kind: store.KindDomain, ID: superordinate.RepoID}, superordinate); err != nil {
					return err
				}
			}
			if tld, ok := w.registries.FindTLDForName(host.ForeignKey); ok {
				out.refreshes = append(out.refreshes, queue.RefreshTask{
					Kind: queue.RefreshHost,
					Name: host.ForeignKey,
					TLD:  tld.Name,
				})
			}
		}

		host.DeletionTime = now
		host.RemoveStatus(model.StatusPendingDelete)
		if err := store.Put(ctx, tx, store.Key{Kind: store.KindHost, ID: host.RepoID}, host); err != nil {
			return err
		}
		if err := retireForeignKey(ctx, tx, store.KindHost, host.ForeignKey, now); err != nil {
			return err
		}
		return w.notify(ctx, tx, &out, task, host.RepoID, now,
			model.HistoryHostDelete,
			fmt.Sprintf("Deleted host %s.", host.ForeignKey))
	})
	if err != nil {
		return err
	}
	w.release(ctx, out)
	return nil
}

func (w *Worker) processContact(ctx context.Context, task queue.DeletionTask) error {
	var out outcome
	err := w.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		out = outcome{}
		now := w.now()
		contact, err := store.Get[model.Contact](ctx, tx, store.Key{Kind: store.KindContact, ID: task.ResourceRepoID})
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !contact.ActiveAt(now) || !contact.HasStatus(model.StatusPendingDelete) {
			return nil
		}

		referencing, err := domainsReferencingContact(ctx, tx, contact.ForeignKey, now)
		if err != nil {
			return err
		}
		if len(referencing) > 0 {
			contact.RemoveStatus(model.StatusPendingDelete)
			contact.LastUpdateTime = now
			if err := store.Put(ctx, tx, store.Key{Kind: store.KindContact, ID: contact.RepoID}, contact); err != nil {
				return err
			}
			return w.notify(ctx, tx, &out, task, contact.RepoID, now,
				model.HistoryContactDeleteFailure,
				fmt.Sprintf("Can't delete contact %s because it is referenced by a domain.", contact.ForeignKey))
		}

		contact.DeletionTime = now
		contact.RemoveStatus(model.StatusPendingDelete)
		if err := store.Put(ctx, tx, store.Key{Kind: store.KindContact, ID: contact.RepoID}, contact); err != nil {
			return err
		}
		if err := retireForeignKey(ctx, tx, store.KindContact, contact.ForeignKey, now); err != nil {
			return err
		}
		return w.notify(ctx, tx, &out, task, contact.RepoID, now,
			model.HistoryContactDelete,
			fmt.Sprintf("Deleted contact %s.", contact.ForeignKey))
	})
	if err != nil {
		return err
	}
	w.release(ctx, out)
	return nil
}

// notify writes the poll message and history entry one task outcome owes.
func (w *Worker) notify(
	ctx context.Context,
	tx store.Tx,
	out *outcome,
	task queue.DeletionTask,
	repoID string,
	now time.Time,
	typ model.HistoryType,
	message string,
) error {
	poll := model.PollMessage{
		ID:             w.ids.EntityID(),
		Registrar:      task.RequestingRegistrar,
		EventTime:      now,
		Message:        message,
		ResourceRepoID: repoID,
	}
	if err := store.Put(ctx, tx, store.Key{Kind: store.KindPollMessage, ID: poll.ID}, &poll); err != nil {
		return err
	}
	entry := model.HistoryEntry{
		ID:             w.ids.EntityID(),
		ResourceRepoID: repoID,
		Type:           typ,
		Registrar:      task.RequestingRegistrar,
		Time:           now,
		ClientTrid:     task.ClientTrid,
		ServerTrid:     task.ServerTrid,
		Superuser:      task.Superuser,
	}
	if err := store.Put(ctx, tx, store.Key{Kind: store.KindHistory, ID: entry.ID}, &entry); err != nil {
		return err
	}
	out.history = append(out.history, entry)
	return nil
}

func (w *Worker) release(ctx context.Context, out outcome) {
	for _, task := range out.refreshes {
		if err := w.dns.EnqueueRefresh(ctx, task); err != nil {
			w.logger.ErrorContext(ctx, "enqueue dns refresh", "name", task.Name, "error", err.Error())
			continue
		}
		w.metrics.DNSTasks.Inc()
	}
	if w.history != nil {
		for _, entry := range out.history {
			w.history.PublishHistory(ctx, entry)
		}
	}
}

func (w *Worker) loadDomainByName(ctx context.Context, tx store.Tx, name string, now time.Time) (*model.Domain, bool, error) {
	fki, err := store.Get[model.ForeignKeyIndex](ctx, tx, store.Key{
		Kind: store.KindForeignKey,
		ID:   store.FKIID(store.KindDomain, name),
	})
	if store.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !fki.ActiveAt(now) {
		return nil, false, nil
	}
	domain, err := store.Get[model.Domain](ctx, tx, store.Key{Kind: store.KindDomain, ID: fki.RepoID})
	if store.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return domain, true, nil
}

func retireForeignKey(ctx context.Context, tx store.Tx, kind store.Kind, foreignKey string, now time.Time) error {
	key := store.Key{Kind: store.KindForeignKey, ID: store.FKIID(kind, foreignKey)}
	fki, err := store.Get[model.ForeignKeyIndex](ctx, tx, key)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	fki.DeletionTime = now
	return store.Put(ctx, tx, key, fki)
}

func domainsReferencingHost(ctx context.Context, tx store.Tx, hostname string, now time.Time) ([]*model.Domain, error) {
	return activeDomains(ctx, tx, now, func(d *model.Domain) bool {
		for _, ns := range d.Nameservers {
			if ns == hostname {
				return true
			}
		}
		return false
	})
}

func domainsReferencingContact(ctx context.Context, tx store.Tx, contactID string, now time.Time) ([]*model.Domain, error) {
	return activeDomains(ctx, tx, now, func(d *model.Domain) bool {
		if d.Registrant == contactID {
			return true
		}
		for _, dc := range d.Contacts {
			if dc.ContactID == contactID {
				return true
			}
		}
		return false
	})
}

func activeDomains(ctx context.Context, tx store.Tx, now time.Time, match func(*model.Domain) bool) ([]*model.Domain, error) {
	var matched []*model.Domain
	entities, err := tx.Query(ctx, store.KindDomain, func(ent *store.Entity) bool {
		domain, err := store.Decode[model.Domain](ent)
		if err != nil {
			return false
		}
		return domain.ActiveAt(now) && match(domain)
	})
	if err != nil {
		return nil, err
	}
	for _, ent := range entities {
		domain, err := store.Decode[model.Domain](ent)
		if err != nil {
			return nil, err
		}
		matched = append(matched, domain)
	}
	return matched, nil
}
