// Package httptransport exposes the EPP engine over HTTP. One command per
// POST; sessions ride an opaque header so the protocol stays stateless at
// the connection level.
package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"registryd/internal/epp"
	"registryd/internal/flows"
	"registryd/pkg/epperr"
	"registryd/pkg/requestcontext"
)

// SessionHeader carries the session id issued at login. Logged-in requests
// echo it back; logout clears it.
const SessionHeader = "X-EPP-Session"

// SuperuserHeader requests superuser execution. Honored only for
// registrars in the configured superuser set.
const SuperuserHeader = "X-EPP-Superuser"

const maxRequestBytes = 64 << 10

// Handler is the thin EPP-over-HTTP layer. It decodes, resolves the
// session, and delegates to the flow runner; no registry logic lives here.
type Handler struct {
	runner     *flows.Runner
	sessions   flows.Sessions
	logger     *slog.Logger
	superusers map[string]bool
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithSuperusers names the registrars allowed to request superuser
// execution.
func WithSuperusers(registrars []string) HandlerOption {
	return func(h *Handler) {
		for _, r := range registrars {
			h.superusers[r] = true
		}
	}
}

// NewHandler constructs the EPP endpoint handler.
func NewHandler(runner *flows.Runner, sessions flows.Sessions, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		runner:     runner,
		sessions:   sessions,
		logger:     logger,
		superusers: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// handleCommand serves POST /epp. Every outcome, including malformed input,
// is a well-formed EPP response with HTTP 200; transport-level errors are
// reserved for infrastructure failures.
func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "read request", http.StatusBadRequest)
		return
	}

	ctx, ok := h.resolveSession(ctx, w, r)
	if !ok {
		return
	}

	cmd, err := epp.Decode(body)
	if err != nil {
		h.writeResponse(ctx, w, epp.Failure(err))
		return
	}

	result := h.runner.Run(ctx, cmd)
	if result.CreatedSessionID != "" {
		w.Header().Set(SessionHeader, result.CreatedSessionID)
	}
	if result.EndedSession {
		w.Header().Set(SessionHeader, "")
	}
	h.writeResponse(ctx, w, result.Response)
}

// resolveSession maps the session header to a logged-in registrar. A stale
// or unknown session id is answered directly so flows never see a
// half-authenticated request.
func (h *Handler) resolveSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (context.Context, bool) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		return ctx, true
	}
	registrar, ok, err := h.sessions.Resolve(ctx, sessionID)
	if err != nil {
		h.logger.ErrorContext(ctx, "resolve session", "error", err.Error())
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return ctx, false
	}
	if !ok {
		h.writeResponse(ctx, w, epp.Failure(
			epperr.New(epperr.CodeCommandUseError, "Registrar is not logged in")))
		return ctx, false
	}
	ctx = requestcontext.WithSessionID(ctx, sessionID)
	ctx = requestcontext.WithRegistrarID(ctx, registrar)
	if r.Header.Get(SuperuserHeader) == "1" && h.superusers[registrar] {
		ctx = requestcontext.WithSuperuser(ctx, true)
	}
	return ctx, true
}

func (h *Handler) writeResponse(ctx context.Context, w http.ResponseWriter, resp *epp.Response) {
	out, err := resp.Encode()
	if err != nil {
		h.logger.ErrorContext(ctx, "encode response", "error", err.Error())
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/epp+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
