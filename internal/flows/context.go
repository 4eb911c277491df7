package flows

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/queue"
	"registryd/internal/registries"
	"registryd/internal/store"
)

// DefaultRoidSuffix is the repository-id suffix for resources not scoped to
// a TLD (contacts and external hosts).
const DefaultRoidSuffix = "ROID"

// IDGenerator allocates identifiers for new entities. Injectable so tests
// get deterministic ids.
type IDGenerator interface {
	// RepoID allocates a repository id with the given suffix.
	RepoID(roidSuffix string) string
	// EntityID allocates an id for history entries, poll messages, and
	// billing events.
	EntityID() string
}

// RandomIDs is the production IDGenerator.
type RandomIDs struct{}

func (RandomIDs) RepoID(roidSuffix string) string {
	return model.NewRepoID(rand.Uint64()>>16, roidSuffix)
}

func (RandomIDs) EntityID() string { return uuid.NewString() }

// Sessions is the session state the login/logout flows and the transport
// middleware share.
type Sessions interface {
	// Create opens a session for a registrar and returns its id.
	Create(ctx context.Context, registrarID string) (string, error)
	// Resolve maps a session id to its registrar, reporting false for
	// unknown or expired sessions.
	Resolve(ctx context.Context, sessionID string) (string, bool, error)
	// Destroy ends a session. Destroying an unknown session is a no-op.
	Destroy(ctx context.Context, sessionID string) error
}

// Context carries everything one flow execution needs: the command, the
// transaction (or read snapshot), request facts, shared reference data, and
// the side-effect collectors the runner flushes after commit.
type Context struct {
	Tx         store.Tx
	Command    *epp.Command
	Now        time.Time
	Registrar  string
	Superuser  bool
	SvTRID     string
	Registries *registries.Registries
	IDs        IDGenerator
	Sessions   Sessions

	// Session directives for the transport layer, set by login/logout.
	CreatedSessionID string
	EndedSession     bool

	history      []model.HistoryEntry
	dnsRefreshes []queue.RefreshTask
	dnsSeen      map[string]bool
	deletions    []queue.DeletionTask
}

// RecordHistory persists a history entry in the flow's transaction and
// stages it for post-commit publication to the history event stream.
func (fc *Context) RecordHistory(ctx context.Context, entry model.HistoryEntry) error {
	key := store.Key{Kind: store.KindHistory, ID: entry.ID}
	if err := store.Put(ctx, fc.Tx, key, &entry); err != nil {
		return err
	}
	fc.history = append(fc.history, entry)
	return nil
}

// NewHistoryEntry pre-fills the request facts shared by every history entry
// a flow writes.
func (fc *Context) NewHistoryEntry(typ model.HistoryType, resourceRepoID string) model.HistoryEntry {
	return model.HistoryEntry{
		ID:             fc.IDs.EntityID(),
		ResourceRepoID: resourceRepoID,
		Type:           typ,
		Registrar:      fc.Registrar,
		Time:           fc.Now,
		ClientTrid:     fc.Command.ClTRID,
		ServerTrid:     fc.SvTRID,
		Superuser:      fc.Superuser,
		RawRequest:     fc.Command.Raw,
	}
}

// RefreshDNS stages a DNS refresh task for release after commit. Tasks are
// deduplicated per name within one flow, so a flow touching the same
// hostname twice enqueues once.
func (fc *Context) RefreshDNS(kind queue.RefreshKind, name, tld string) {
	dedupe := string(kind) + "/" + name
	if fc.dnsSeen[dedupe] {
		return
	}
	if fc.dnsSeen == nil {
		fc.dnsSeen = make(map[string]bool)
	}
	fc.dnsSeen[dedupe] = true
	fc.dnsRefreshes = append(fc.dnsRefreshes, queue.RefreshTask{Kind: kind, Name: name, TLD: tld})
}

// EnqueueDeletion stages an async deletion task for release after commit.
func (fc *Context) EnqueueDeletion(task queue.DeletionTask) {
	fc.deletions = append(fc.deletions, task)
}
