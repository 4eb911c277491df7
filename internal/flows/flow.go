// Package flows implements EPP command execution: one flow type per
// (verb, resource kind) pair, a dispatcher that selects and constructs a
// fresh flow per request, and a runner that wraps transactional flows in a
// store transaction and releases side effects only after commit.
//
// Flows are written in three phases that never interleave: validate (checks
// in a fixed order, first failure aborts), build (pure computation of the
// new resource version and staged side-effect entities), commit (staging
// writes on the transaction). All reads happen inside the same transaction
// that commits, so the store's version check covers everything a flow based
// its decisions on.
package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/pkg/epperr"
)

// Capabilities describes how the runner must execute a flow.
type Capabilities struct {
	// RequiresLogin rejects the command unless a session is established.
	RequiresLogin bool
	// IsTransactional runs the flow inside a store transaction; otherwise
	// the flow reads from a point-in-time snapshot.
	IsTransactional bool
	// MutatesState marks flows that write; these must record a history
	// entry before returning.
	MutatesState bool
}

// Flow executes one EPP command. Implementations are single-use: the
// dispatcher constructs a fresh value for every request.
type Flow interface {
	Capabilities() Capabilities
	Run(ctx context.Context, fc *Context) (*epp.Response, error)
}

// Constructor builds a fresh flow instance.
type Constructor func() Flow

type dispatchKey struct {
	verb epp.Verb
	kind epp.ResourceKind
}

// Dispatcher maps (verb, resource kind) to flow constructors.
type Dispatcher struct {
	byKey map[dispatchKey]Constructor
}

// NewDispatcher returns a dispatcher with every supported flow registered.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{byKey: make(map[dispatchKey]Constructor)}

	d.register(epp.VerbLogin, epp.KindNone, func() Flow { return &loginFlow{} })
	d.register(epp.VerbLogout, epp.KindNone, func() Flow { return &logoutFlow{} })

	d.register(epp.VerbCreate, epp.KindHost, func() Flow { return &hostCreateFlow{} })
	d.register(epp.VerbUpdate, epp.KindHost, func() Flow { return &hostUpdateFlow{} })
	d.register(epp.VerbDelete, epp.KindHost, func() Flow { return &hostDeleteFlow{} })
	d.register(epp.VerbInfo, epp.KindHost, func() Flow { return &hostInfoFlow{} })
	d.register(epp.VerbCheck, epp.KindHost, func() Flow { return &hostCheckFlow{} })

	d.register(epp.VerbCreate, epp.KindDomain, func() Flow { return &domainCreateFlow{} })
	d.register(epp.VerbUpdate, epp.KindDomain, func() Flow { return &domainUpdateFlow{} })
	d.register(epp.VerbDelete, epp.KindDomain, func() Flow { return &domainDeleteFlow{} })
	d.register(epp.VerbRenew, epp.KindDomain, func() Flow { return &domainRenewFlow{} })
	d.register(epp.VerbInfo, epp.KindDomain, func() Flow { return &domainInfoFlow{} })
	d.register(epp.VerbCheck, epp.KindDomain, func() Flow { return &domainCheckFlow{} })
	d.register(epp.VerbTransferRequest, epp.KindDomain, func() Flow { return &domainTransferRequestFlow{} })
	d.register(epp.VerbTransferApprove, epp.KindDomain, func() Flow { return &domainTransferApproveFlow{} })
	d.register(epp.VerbTransferReject, epp.KindDomain, func() Flow { return &domainTransferRejectFlow{} })
	d.register(epp.VerbTransferCancel, epp.KindDomain, func() Flow { return &domainTransferCancelFlow{} })

	d.register(epp.VerbCreate, epp.KindContact, func() Flow { return &contactCreateFlow{} })
	d.register(epp.VerbUpdate, epp.KindContact, func() Flow { return &contactUpdateFlow{} })
	d.register(epp.VerbDelete, epp.KindContact, func() Flow { return &contactDeleteFlow{} })
	d.register(epp.VerbInfo, epp.KindContact, func() Flow { return &contactInfoFlow{} })
	d.register(epp.VerbCheck, epp.KindContact, func() Flow { return &contactCheckFlow{} })

	return d
}

func (d *Dispatcher) register(verb epp.Verb, kind epp.ResourceKind, ctor Constructor) {
	d.byKey[dispatchKey{verb: verb, kind: kind}] = ctor
}

// Lookup selects the flow constructor for a command, or an unimplemented-
// command error for (verb, kind) pairs the registry does not support.
func (d *Dispatcher) Lookup(verb epp.Verb, kind epp.ResourceKind) (Constructor, error) {
	ctor, ok := d.byKey[dispatchKey{verb: verb, kind: kind}]
	if !ok {
		return nil, epperr.New(epperr.CodeUnimplementedCommand, "Unimplemented command")
	}
	return ctor, nil
}
