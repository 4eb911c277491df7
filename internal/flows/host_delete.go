package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/queue"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

var hostDeleteDisallowedStatuses = []model.StatusValue{
	model.StatusPendingDelete,
	model.StatusClientDeleteProhibited,
	model.StatusServerDeleteProhibited,
}

// hostDeleteFlow deletes a host asynchronously. The flow fails fast when a
// domain already references the host, but the authoritative reference scan
// happens in the async worker; until then the host is optimistically marked
// pendingDelete.
type hostDeleteFlow struct{}

func (hostDeleteFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *hostDeleteFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	name := fc.Command.HostDelete.Name

	if err := validateHostName(name, fc.Registries); err != nil {
		return nil, err
	}
	referenced, err := domainsReferencingHost(ctx, fc.Tx, name, fc)
	if err != nil {
		return nil, err
	}
	if referenced {
		return nil, epperr.New(epperr.CodeAssociationProhibitsOp,
			"Resource to be deleted is referenced by another resource")
	}
	host, err := loadHostByName(ctx, fc.Tx, name, fc.Now)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifyNoDisallowedStatuses(&host.ResourceBase, hostDeleteDisallowedStatuses...); err != nil {
			return nil, err
		}
		// Hosts transfer with their superordinate domains, so subordinate
		// hosts are controlled by whoever sponsors the domain.
		var superordinate *model.Domain
		if host.IsSubordinate() {
			superordinate, err = loadDomainByName(ctx, fc.Tx, host.SuperordinateDomain, fc.Now)
			if err != nil {
				return nil, err
			}
		}
		if err := verifyResourceOwnership(fc.Registrar, hostOwner(host, superordinate)); err != nil {
			return nil, err
		}
	}

	host.AddStatus(model.StatusPendingDelete)
	if err := saveHost(ctx, fc.Tx, host); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryHostPendingDelete, host.RepoID)); err != nil {
		return nil, err
	}
	fc.EnqueueDeletion(queue.DeletionTask{
		ResourceKind:        string(store.KindHost),
		ResourceRepoID:      host.RepoID,
		RequestingRegistrar: fc.Registrar,
		ClientTrid:          fc.Command.ClTRID,
		ServerTrid:          fc.SvTRID,
		Superuser:           fc.Superuser,
		RequestTime:         fc.Now,
	})
	return epp.Success(epperr.CodeSuccessActionPending, nil), nil
}
