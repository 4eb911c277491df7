package flows_test

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"registryd/internal/epp"
	"registryd/internal/flows"
	"registryd/internal/model"
	"registryd/internal/platform/metrics"
	"registryd/internal/queue"
	"registryd/internal/registries"
	"registryd/internal/session"
	"registryd/internal/store"
	"registryd/internal/store/memory"
	"registryd/internal/watch"
	"registryd/pkg/requestcontext"
)

var testTime = time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC)

// seqIDs allocates deterministic ids so tests can assert on identity.
type seqIDs struct{ n int }

func (s *seqIDs) RepoID(suffix string) string {
	s.n++
	return fmt.Sprintf("%X-%s", s.n+0xA000, suffix)
}

func (s *seqIDs) EntityID() string {
	s.n++
	return fmt.Sprintf("id-%d", s.n)
}

type env struct {
	t          *testing.T
	store      *memory.Store
	tasks      *queue.Memory
	sink       *watch.MemorySink
	sessions   *session.Memory
	registries *registries.Registries
	runner     *flows.Runner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	reg, err := registries.New(registries.StaticLoader(
		registries.TLD{Name: "test", RoidSuffix: "TEST", ReservedLabels: []string{"reserved"}},
		registries.TLD{Name: "example", RoidSuffix: "EXMPL"},
	))
	require.NoError(t, err)

	e := &env{
		t:          t,
		store:      memory.New(),
		tasks:      queue.NewMemory(),
		sink:       watch.NewMemorySink(),
		sessions:   session.NewMemory(time.Hour),
		registries: reg,
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	e.runner = flows.NewRunner(
		e.store, reg, e.tasks, e.tasks,
		e.sessions,
		metrics.New(prometheus.NewRegistry()),
		logger,
		flows.WithIDGenerator(&seqIDs{}),
		flows.WithHistoryPublisher(e.sink),
	)

	e.seedRegistrar("TheRegistrar")
	e.seedRegistrar("NewRegistrar")
	return e
}

// run executes one command as the given logged-in registrar at testTime.
func (e *env) run(registrar string, cmd *epp.Command) *epp.Response {
	e.t.Helper()
	ctx := requestContext(registrar, false)
	return e.runner.Run(ctx, cmd).Response
}

func (e *env) runAt(registrar string, at time.Time, cmd *epp.Command) *epp.Response {
	e.t.Helper()
	ctx := context.Background()
	ctx = withRequestFacts(ctx, registrar, false, at)
	return e.runner.Run(ctx, cmd).Response
}

func (e *env) runSuperuser(registrar string, cmd *epp.Command) *epp.Response {
	e.t.Helper()
	ctx := withRequestFacts(context.Background(), registrar, true, testTime)
	return e.runner.Run(ctx, cmd).Response
}

func (e *env) put(key store.Key, value any) {
	e.t.Helper()
	err := e.store.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		switch v := value.(type) {
		case *model.Host:
			return store.Put(ctx, tx, key, v)
		case *model.Domain:
			return store.Put(ctx, tx, key, v)
		case *model.Contact:
			return store.Put(ctx, tx, key, v)
		case *model.Registrar:
			return store.Put(ctx, tx, key, v)
		case *model.ForeignKeyIndex:
			return store.Put(ctx, tx, key, v)
		case *model.PollMessage:
			return store.Put(ctx, tx, key, v)
		case *model.BillingEvent:
			return store.Put(ctx, tx, key, v)
		default:
			e.t.Fatalf("unsupported fixture type %T", value)
			return nil
		}
	})
	require.NoError(e.t, err)
}

func (e *env) seedRegistrar(id string) {
	hash, err := model.HashPassword("foo-BAR2")
	require.NoError(e.t, err)
	e.put(store.Key{Kind: store.KindRegistrar, ID: id}, &model.Registrar{
		ID:           id,
		Name:         id,
		PasswordHash: hash,
	})
}

func (e *env) seedContact(id, repoID string) *model.Contact {
	contact := &model.Contact{
		ResourceBase: model.ResourceBase{
			RepoID:            repoID,
			ForeignKey:        id,
			CreationTime:      testTime.AddDate(0, -6, 0),
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: "TheRegistrar",
			SponsorRegistrar:  "TheRegistrar",
		},
		Email: id + "@example.com",
	}
	e.put(store.Key{Kind: store.KindContact, ID: repoID}, contact)
	e.installFKI(store.KindContact, id, repoID)
	return contact
}

func (e *env) seedDomain(name, repoID, sponsor string) *model.Domain {
	domain := &model.Domain{
		ResourceBase: model.ResourceBase{
			RepoID:            repoID,
			ForeignKey:        name,
			CreationTime:      testTime.AddDate(-1, 0, 0),
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: sponsor,
			SponsorRegistrar:  sponsor,
		},
		TLD:                    "test",
		Registrant:             "jd1234",
		RegistrationExpiration: testTime.AddDate(1, 0, 0),
	}
	e.put(store.Key{Kind: store.KindDomain, ID: repoID}, domain)
	e.installFKI(store.KindDomain, name, repoID)
	return domain
}

func (e *env) seedHost(name, repoID, superordinate string, addrs ...string) *model.Host {
	host := &model.Host{
		ResourceBase: model.ResourceBase{
			RepoID:            repoID,
			ForeignKey:        name,
			CreationTime:      testTime.AddDate(0, -3, 0),
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: "TheRegistrar",
			SponsorRegistrar:  "TheRegistrar",
		},
		SuperordinateDomain: superordinate,
	}
	for _, a := range addrs {
		host.Addresses = append(host.Addresses, netip.MustParseAddr(a))
	}
	e.put(store.Key{Kind: store.KindHost, ID: repoID}, host)
	e.installFKI(store.KindHost, name, repoID)
	return host
}

func (e *env) installFKI(kind store.Kind, foreignKey, repoID string) {
	e.put(store.Key{Kind: store.KindForeignKey, ID: store.FKIID(kind, foreignKey)}, &model.ForeignKeyIndex{
		ForeignKey:   foreignKey,
		RepoID:       repoID,
		DeletionTime: model.EndOfTime,
	})
}

func (e *env) readHost(repoID string) *model.Host {
	e.t.Helper()
	ent, err := e.store.Read(context.Background(), store.Key{Kind: store.KindHost, ID: repoID})
	require.NoError(e.t, err)
	host, err := store.Decode[model.Host](ent)
	require.NoError(e.t, err)
	return host
}

func (e *env) readDomain(repoID string) *model.Domain {
	e.t.Helper()
	ent, err := e.store.Read(context.Background(), store.Key{Kind: store.KindDomain, ID: repoID})
	require.NoError(e.t, err)
	domain, err := store.Decode[model.Domain](ent)
	require.NoError(e.t, err)
	return domain
}

func (e *env) readContact(repoID string) *model.Contact {
	e.t.Helper()
	ent, err := e.store.Read(context.Background(), store.Key{Kind: store.KindContact, ID: repoID})
	require.NoError(e.t, err)
	contact, err := store.Decode[model.Contact](ent)
	require.NoError(e.t, err)
	return contact
}

func (e *env) readFKI(kind store.Kind, foreignKey string) (*model.ForeignKeyIndex, bool) {
	e.t.Helper()
	ent, err := e.store.Read(context.Background(), store.Key{Kind: store.KindForeignKey, ID: store.FKIID(kind, foreignKey)})
	if store.IsNotFound(err) {
		return nil, false
	}
	require.NoError(e.t, err)
	fki, err := store.Decode[model.ForeignKeyIndex](ent)
	require.NoError(e.t, err)
	return fki, true
}

func (e *env) resolveRepoID(kind store.Kind, foreignKey string) string {
	e.t.Helper()
	fki, ok := e.readFKI(kind, foreignKey)
	require.True(e.t, ok, "no foreign key index for %s %q", kind, foreignKey)
	return fki.RepoID
}

func (e *env) billingEventsFor(domainRepoID string) []model.BillingEvent {
	e.t.Helper()
	entities, err := e.store.Query(context.Background(), store.KindBillingEvent, nil)
	require.NoError(e.t, err)
	var out []model.BillingEvent
	for _, ent := range entities {
		ev, err := store.Decode[model.BillingEvent](ent)
		require.NoError(e.t, err)
		if ev.DomainRepoID == domainRepoID {
			out = append(out, *ev)
		}
	}
	return out
}

func (e *env) pollMessagesFor(registrar string) []model.PollMessage {
	e.t.Helper()
	entities, err := e.store.Query(context.Background(), store.KindPollMessage, nil)
	require.NoError(e.t, err)
	var out []model.PollMessage
	for _, ent := range entities {
		msg, err := store.Decode[model.PollMessage](ent)
		require.NoError(e.t, err)
		if msg.Registrar == registrar {
			out = append(out, *msg)
		}
	}
	return out
}

func requestContext(registrar string, superuser bool) context.Context {
	return withRequestFacts(context.Background(), registrar, superuser, testTime)
}

func withRequestFacts(ctx context.Context, registrar string, superuser bool, at time.Time) context.Context {
	ctx = requestcontext.WithRegistrarID(ctx, registrar)
	ctx = requestcontext.WithSuperuser(ctx, superuser)
	ctx = requestcontext.WithTime(ctx, at)
	ctx = requestcontext.WithRequestID(ctx, "test-request")
	return ctx
}
