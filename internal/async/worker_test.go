package async_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registryd/internal/async"
	"registryd/internal/model"
	"registryd/internal/platform/metrics"
	"registryd/internal/queue"
	"registryd/internal/registries"
	"registryd/internal/store"
	"registryd/internal/store/memory"
	"registryd/internal/watch"
)

var testTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type seqIDs struct{ n int }

func (s *seqIDs) RepoID(suffix string) string {
	s.n++
	return fmt.Sprintf("%X-%s", s.n, suffix)
}

func (s *seqIDs) EntityID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type fixture struct {
	store  *memory.Store
	tasks  *queue.Memory
	dns    *queue.Memory
	sink   *watch.MemorySink
	worker *async.Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registries.New(registries.StaticLoader(
		registries.TLD{Name: "test", RoidSuffix: "TEST"},
	))
	require.NoError(t, err)

	st := memory.New()
	tasks := queue.NewMemory()
	f := &fixture{store: st, tasks: tasks, dns: tasks, sink: watch.NewMemorySink()}
	f.worker = async.New(
		st,
		tasks,
		tasks,
		reg,
		metrics.New(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(os.Stdout, nil)),
		time.Millisecond,
		async.WithClock(func() time.Time { return testTime }),
		async.WithIDGenerator(&seqIDs{}),
		async.WithHistoryPublisher(f.sink),
	)
	return f
}

func (f *fixture) put(t *testing.T, key store.Key, value any) {
	t.Helper()
	ctx := context.Background()
	err := f.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		switch v := value.(type) {
		case *model.Host:
			return store.Put(ctx, tx, key, v)
		case *model.Domain:
			return store.Put(ctx, tx, key, v)
		case *model.Contact:
			return store.Put(ctx, tx, key, v)
		case *model.ForeignKeyIndex:
			return store.Put(ctx, tx, key, v)
		default:
			t.Fatalf("unsupported fixture type %T", value)
			return nil
		}
	})
	require.NoError(t, err)
}

func pendingDeleteHost(name, repoID, superordinate string) *model.Host {
	h := &model.Host{
		ResourceBase: model.ResourceBase{
			RepoID:            repoID,
			ForeignKey:        name,
			CreationTime:      testTime.Add(-24 * time.Hour),
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: "TheRegistrar",
			SponsorRegistrar:  "TheRegistrar",
		},
		SuperordinateDomain: superordinate,
	}
	h.AddStatus(model.StatusPendingDelete)
	return h
}

func activeDomain(name, repoID string, nameservers ...string) *model.Domain {
	return &model.Domain{
		ResourceBase: model.ResourceBase{
			RepoID:            repoID,
			ForeignKey:        name,
			CreationTime:      testTime.Add(-48 * time.Hour),
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: "TheRegistrar",
			SponsorRegistrar:  "TheRegistrar",
		},
		TLD:         "test",
		Nameservers: nameservers,
	}
}

func installFKI(t *testing.T, f *fixture, kind store.Kind, foreignKey, repoID string) {
	t.Helper()
	f.put(t, store.Key{Kind: store.KindForeignKey, ID: store.FKIID(kind, foreignKey)}, &model.ForeignKeyIndex{
		ForeignKey:   foreignKey,
		RepoID:       repoID,
		DeletionTime: model.EndOfTime,
	})
}

func deletionTask(kind, repoID string) queue.DeletionTask {
	return queue.DeletionTask{
		ResourceKind:        kind,
		ResourceRepoID:      repoID,
		RequestingRegistrar: "TheRegistrar",
		ClientTrid:          "ABC-12345",
		ServerTrid:          "registryd-1",
		RequestTime:         testTime.Add(-10 * time.Minute),
	}
}

func TestWorkerDeletesUnreferencedHost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	domain := activeDomain("example.test", "1-TEST")
	domain.AddSubordinateHost("ns1.example.test")
	f.put(t, store.Key{Kind: store.KindDomain, ID: domain.RepoID}, domain)
	installFKI(t, f, store.KindDomain, "example.test", domain.RepoID)

	host := pendingDeleteHost("ns1.example.test", "2-TEST", "example.test")
	f.put(t, store.Key{Kind: store.KindHost, ID: host.RepoID}, host)
	installFKI(t, f, store.KindHost, "ns1.example.test", host.RepoID)

	require.NoError(t, f.tasks.EnqueueDeletion(ctx, deletionTask("host", host.RepoID)))

	progressed, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, progressed)

	ent, err := f.store.Read(ctx, store.Key{Kind: store.KindHost, ID: host.RepoID})
	require.NoError(t, err)
	got, err := store.Decode[model.Host](ent)
	require.NoError(t, err)
	assert.Equal(t, testTime, got.DeletionTime)
	assert.False(t, got.HasStatus(model.StatusPendingDelete))

	ent, err = f.store.Read(ctx, store.Key{Kind: store.KindForeignKey, ID: store.FKIID(store.KindHost, "ns1.example.test")})
	require.NoError(t, err)
	fki, err := store.Decode[model.ForeignKeyIndex](ent)
	require.NoError(t, err)
	assert.Equal(t, testTime, fki.DeletionTime)

	ent, err = f.store.Read(ctx, store.Key{Kind: store.KindDomain, ID: domain.RepoID})
	require.NoError(t, err)
	gotDomain, err := store.Decode[model.Domain](ent)
	require.NoError(t, err)
	assert.Empty(t, gotDomain.SubordinateHosts)

	refreshes := f.dns.Refreshes()
	require.Len(t, refreshes, 1)
	assert.Equal(t, queue.RefreshHost, refreshes[0].Kind)
	assert.Equal(t, "ns1.example.test", refreshes[0].Name)

	entries := f.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.HistoryHostDelete, entries[0].Type)
	assert.Equal(t, host.RepoID, entries[0].ResourceRepoID)
}

func TestWorkerRevertsReferencedHost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	host := pendingDeleteHost("ns1.example.test", "2-TEST", "example.test")
	f.put(t, store.Key{Kind: store.KindHost, ID: host.RepoID}, host)
	installFKI(t, f, store.KindHost, "ns1.example.test", host.RepoID)

	domain := activeDomain("other.test", "3-TEST", "ns1.example.test")
	f.put(t, store.Key{Kind: store.KindDomain, ID: domain.RepoID}, domain)

	require.NoError(t, f.tasks.EnqueueDeletion(ctx, deletionTask("host", host.RepoID)))

	progressed, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, progressed)

	ent, err := f.store.Read(ctx, store.Key{Kind: store.KindHost, ID: host.RepoID})
	require.NoError(t, err)
	got, err := store.Decode[model.Host](ent)
	require.NoError(t, err)
	assert.False(t, got.HasStatus(model.StatusPendingDelete), "pendingDelete should be reverted")
	assert.Equal(t, model.EndOfTime, got.DeletionTime, "host should remain alive")

	entries := f.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.HistoryHostDeleteFailure, entries[0].Type)

	assert.Empty(t, f.dns.Refreshes())
}

func TestWorkerHonorsNotBefore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := deletionTask("host", "2-TEST")
	task.NotBefore = testTime.Add(time.Minute)
	require.NoError(t, f.tasks.EnqueueDeletion(ctx, task))

	progressed, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, progressed, "task before its grace deadline must wait")
	assert.Len(t, f.tasks.Deletions(), 1, "task should be requeued")
}

func TestWorkerRevertsReferencedContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	contact := &model.Contact{
		ResourceBase: model.ResourceBase{
			RepoID:            "4-TEST",
			ForeignKey:        "sh8013",
			CreationTime:      testTime.Add(-24 * time.Hour),
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: "TheRegistrar",
			SponsorRegistrar:  "TheRegistrar",
		},
	}
	contact.AddStatus(model.StatusPendingDelete)
	f.put(t, store.Key{Kind: store.KindContact, ID: contact.RepoID}, contact)
	installFKI(t, f, store.KindContact, "sh8013", contact.RepoID)

	domain := activeDomain("example.test", "1-TEST")
	domain.Registrant = "sh8013"
	f.put(t, store.Key{Kind: store.KindDomain, ID: domain.RepoID}, domain)

	require.NoError(t, f.tasks.EnqueueDeletion(ctx, deletionTask("contact", contact.RepoID)))

	progressed, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, progressed)

	ent, err := f.store.Read(ctx, store.Key{Kind: store.KindContact, ID: contact.RepoID})
	require.NoError(t, err)
	got, err := store.Decode[model.Contact](ent)
	require.NoError(t, err)
	assert.False(t, got.HasStatus(model.StatusPendingDelete))

	entries := f.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.HistoryContactDeleteFailure, entries[0].Type)
}

func TestWorkerDeletesUnreferencedContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	contact := &model.Contact{
		ResourceBase: model.ResourceBase{
			RepoID:            "4-TEST",
			ForeignKey:        "sh8013",
			CreationTime:      testTime.Add(-24 * time.Hour),
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: "TheRegistrar",
			SponsorRegistrar:  "TheRegistrar",
		},
	}
	contact.AddStatus(model.StatusPendingDelete)
	f.put(t, store.Key{Kind: store.KindContact, ID: contact.RepoID}, contact)
	installFKI(t, f, store.KindContact, "sh8013", contact.RepoID)

	require.NoError(t, f.tasks.EnqueueDeletion(ctx, deletionTask("contact", contact.RepoID)))

	progressed, err := f.worker.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, progressed)

	ent, err := f.store.Read(ctx, store.Key{Kind: store.KindContact, ID: contact.RepoID})
	require.NoError(t, err)
	got, err := store.Decode[model.Contact](ent)
	require.NoError(t, err)
	assert.Equal(t, testTime, got.DeletionTime)

	entries := f.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.HistoryContactDelete, entries[0].Type)
}
