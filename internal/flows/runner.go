package flows

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/platform/metrics"
	"registryd/internal/queue"
	"registryd/internal/registries"
	"registryd/internal/store"
	"registryd/pkg/epperr"
	"registryd/pkg/platform/sentinel"
	"registryd/pkg/requestcontext"
)

// HistoryPublisher receives committed history entries for the downstream
// event stream. Publication is fire-and-forget; failures are logged, never
// surfaced to the registrar.
type HistoryPublisher interface {
	PublishHistory(ctx context.Context, entry model.HistoryEntry)
}

// Result is one completed command execution: the response document plus the
// session directives the transport layer must apply.
type Result struct {
	Response         *epp.Response
	CreatedSessionID string
	EndedSession     bool
}

// Runner executes commands end to end: dispatch, session check, transaction
// wrapping, and post-commit side-effect release.
type Runner struct {
	store      store.Store
	dispatcher *Dispatcher
	registries *registries.Registries
	dns        queue.DNS
	async      queue.Async
	sessions   Sessions
	history    HistoryPublisher
	ids        IDGenerator
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	deletionDelay time.Duration
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithIDGenerator overrides id allocation; tests use this for deterministic
// repo ids.
func WithIDGenerator(ids IDGenerator) RunnerOption {
	return func(r *Runner) { r.ids = ids }
}

// WithHistoryPublisher attaches the post-commit history event stream.
func WithHistoryPublisher(p HistoryPublisher) RunnerOption {
	return func(r *Runner) { r.history = p }
}

// WithDeletionDelay sets the grace delay before the async worker may pick
// up a staged deletion.
func WithDeletionDelay(d time.Duration) RunnerOption {
	return func(r *Runner) { r.deletionDelay = d }
}

// NewRunner builds a Runner over the given collaborators.
func NewRunner(
	st store.Store,
	reg *registries.Registries,
	dns queue.DNS,
	async queue.Async,
	sessions Sessions,
	m *metrics.Metrics,
	log *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		store:      st,
		dispatcher: NewDispatcher(),
		registries: reg,
		dns:        dns,
		async:      async,
		sessions:   sessions,
		ids:        RandomIDs{},
		metrics:    m,
		logger:     log,
		tracer:     otel.Tracer("registryd/flows"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one decoded command. The returned Result always carries an
// encodable response; protocol-level failures are responses, not errors.
func (r *Runner) Run(ctx context.Context, cmd *epp.Command) *Result {
	started := time.Now()
	ctx, span := r.tracer.Start(ctx, "flow.run", trace.WithAttributes(
		attribute.String("epp.verb", string(cmd.Verb)),
		attribute.String("epp.kind", string(cmd.Kind)),
	))
	defer span.End()

	result := r.run(ctx, cmd)
	result.Response.ClTRID = cmd.ClTRID
	result.Response.SvTRID = serverTrid(ctx)

	code := int(result.Response.Code)
	span.SetAttributes(attribute.Int("epp.result_code", code))
	r.metrics.ObserveFlow(string(cmd.Verb), string(cmd.Kind), code, time.Since(started))
	return result
}

func (r *Runner) run(ctx context.Context, cmd *epp.Command) *Result {
	ctor, err := r.dispatcher.Lookup(cmd.Verb, cmd.Kind)
	if err != nil {
		return &Result{Response: epp.Failure(err)}
	}
	flow := ctor()
	caps := flow.Capabilities()

	registrar := requestcontext.RegistrarID(ctx)
	if caps.RequiresLogin && registrar == "" {
		return &Result{Response: epp.Failure(
			epperr.New(epperr.CodeCommandUseError, "Registrar is not logged in"))}
	}

	fc := &Context{
		Command:    cmd,
		Now:        requestcontext.Now(ctx),
		Registrar:  registrar,
		Superuser:  requestcontext.Superuser(ctx),
		SvTRID:     serverTrid(ctx),
		Registries: r.registries,
		IDs:        r.ids,
		Sessions:   r.sessions,
	}

	var resp *epp.Response
	if caps.IsTransactional {
		err = r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			// A retried transaction must not double-stage side effects.
			fc.history = nil
			fc.dnsRefreshes = nil
			fc.dnsSeen = nil
			fc.deletions = nil
			fc.Tx = tx
			var runErr error
			resp, runErr = flow.Run(ctx, fc)
			return runErr
		})
	} else {
		fc.Tx = snapshotTx{store: r.store}
		resp, err = flow.Run(ctx, fc)
	}
	if err != nil {
		return &Result{Response: epp.Failure(r.translate(ctx, cmd, err))}
	}

	r.releaseEffects(ctx, fc)
	return &Result{
		Response:         resp,
		CreatedSessionID: fc.CreatedSessionID,
		EndedSession:     fc.EndedSession,
	}
}

// translate maps errors onto coded protocol failures, logging anything that
// was not already a deliberate flow error.
func (r *Runner) translate(ctx context.Context, cmd *epp.Command, err error) error {
	var coded *epperr.Error
	if errors.As(err, &coded) {
		return err
	}
	if errors.Is(err, sentinel.ErrConflict) {
		r.metrics.CommitConflicts.Inc()
		return epperr.Wrap(err, epperr.CodeCommandFailed,
			"Command failed due to a concurrent change; please retry")
	}
	r.logger.ErrorContext(ctx, "flow failed",
		"verb", string(cmd.Verb),
		"kind", string(cmd.Kind),
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error())
	return epperr.Wrap(err, epperr.CodeCommandFailed, "Command failed")
}

// releaseEffects flushes the side effects a committed flow staged. The
// commit already happened; queue failures are at-least-once territory and
// only get logged.
func (r *Runner) releaseEffects(ctx context.Context, fc *Context) {
	for _, task := range fc.dnsRefreshes {
		if err := r.dns.EnqueueRefresh(ctx, task); err != nil {
			r.logger.ErrorContext(ctx, "enqueue dns refresh", "name", task.Name, "error", err.Error())
			continue
		}
		r.metrics.DNSTasks.Inc()
	}
	for _, task := range fc.deletions {
		if r.deletionDelay > 0 {
			task.NotBefore = requestcontext.Now(ctx).Add(r.deletionDelay)
		}
		if err := r.async.EnqueueDeletion(ctx, task); err != nil {
			r.logger.ErrorContext(ctx, "enqueue deletion", "repo_id", task.ResourceRepoID, "error", err.Error())
			continue
		}
		r.metrics.DeletionTasks.Inc()
	}
	if r.history != nil {
		for _, entry := range fc.history {
			r.history.PublishHistory(ctx, entry)
		}
	}
}

func serverTrid(ctx context.Context) string {
	return "registryd-" + requestcontext.RequestID(ctx)
}

// snapshotTx adapts the store's snapshot reads to the Tx surface so
// non-transactional flows share the transactional helpers. Writes are a
// programming error.
type snapshotTx struct {
	store store.Store
}

func (s snapshotTx) Get(ctx context.Context, key store.Key) (*store.Entity, error) {
	return s.store.Read(ctx, key)
}

func (s snapshotTx) Query(ctx context.Context, kind store.Kind, filter func(*store.Entity) bool) ([]*store.Entity, error) {
	return s.store.Query(ctx, kind, filter)
}

func (s snapshotTx) Put(ctx context.Context, key store.Key, data []byte) error {
	return errors.New("write outside a transaction")
}

func (s snapshotTx) Delete(ctx context.Context, key store.Key) error {
	return errors.New("write outside a transaction")
}
