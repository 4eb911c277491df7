package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/queue"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

var domainDeleteDisallowedStatuses = []model.StatusValue{
	model.StatusPendingDelete,
	model.StatusClientDeleteProhibited,
	model.StatusServerDeleteProhibited,
}

// domainDeleteFlow deletes a domain immediately: the resource and its
// foreign key are tombstoned as of now, the autorenew recurrences close, and
// a pending transfer resolves as server-cancelled with notice to the gaining
// registrar.
type domainDeleteFlow struct{}

func (domainDeleteFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *domainDeleteFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	name := fc.Command.DomainDelete.Name

	tld, _, err := validateDomainName(name, fc.Registries)
	if err != nil {
		return nil, err
	}
	domain, err := loadDomainByName(ctx, fc.Tx, name, fc.Now)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifyNoDisallowedStatuses(&domain.ResourceBase, domainDeleteDisallowedStatuses...); err != nil {
			return nil, err
		}
		if err := verifyResourceOwnership(fc.Registrar, domain.SponsorRegistrar); err != nil {
			return nil, err
		}
	}
	if len(domain.SubordinateHosts) > 0 {
		return nil, epperr.New(epperr.CodeAssociationProhibitsOp,
			"Domain to be deleted has subordinate hosts")
	}

	if domain.Transfer.IsPending() {
		gaining := domain.Transfer.GainingRegistrar
		if err := cancelPendingTransfer(ctx, fc, domain, model.TransferServerCancelled); err != nil {
			return nil, err
		}
		if err := writePollMessage(ctx, fc, model.PollMessage{
			ID:             fc.IDs.EntityID(),
			Registrar:      gaining,
			EventTime:      fc.Now,
			Message:        "Transfer cancelled: the domain was deleted.",
			ResourceRepoID: domain.RepoID,
		}); err != nil {
			return nil, err
		}
	}
	if err := closeAutorenewEntities(ctx, fc, domain, fc.Now); err != nil {
		return nil, err
	}

	domain.DeletionTime = fc.Now
	domain.LastUpdateTime = fc.Now
	domain.LastUpdateRegistrar = fc.Registrar
	if err := saveDomain(ctx, fc.Tx, domain); err != nil {
		return nil, err
	}
	if err := retireForeignKey(ctx, fc.Tx, store.KindDomain, name, fc.Now); err != nil {
		return nil, err
	}
	if err := writePollMessage(ctx, fc, model.PollMessage{
		ID:             fc.IDs.EntityID(),
		Registrar:      domain.SponsorRegistrar,
		EventTime:      fc.Now,
		Message:        "Domain was deleted.",
		ResourceRepoID: domain.RepoID,
	}); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryDomainDelete, domain.RepoID)); err != nil {
		return nil, err
	}
	fc.RefreshDNS(queue.RefreshDomain, name, tld.Name)
	return epp.Success(epperr.CodeSuccess, nil), nil
}
