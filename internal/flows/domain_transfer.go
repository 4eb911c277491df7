package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

var domainTransferDisallowedStatuses = []model.StatusValue{
	model.StatusPendingDelete,
	model.StatusClientTransferProhibited,
	model.StatusServerTransferProhibited,
}

// domainTransferRequestFlow opens a pending transfer. The server-approve
// side effects (transfer billing event, approval poll messages) are written
// immediately but gated pending, so the implicit approval at the pending
// period's end needs no further writes beyond the projection.
type domainTransferRequestFlow struct{}

func (domainTransferRequestFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *domainTransferRequestFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	cmd := fc.Command.DomainTransfer
	name := cmd.Name

	tld, _, err := validateDomainName(name, fc.Registries)
	if err != nil {
		return nil, err
	}
	if err := verifyRegistrarAllowedOnTLD(ctx, fc, tld.Name); err != nil {
		return nil, err
	}
	domain, err := loadDomainByName(ctx, fc.Tx, name, fc.Now)
	if err != nil {
		return nil, err
	}
	if fc.Registrar == domain.SponsorRegistrar {
		return nil, epperr.New(epperr.CodeNotEligibleForTransfer,
			"Registrar already sponsors the object of this transfer request")
	}
	if domain.Transfer.IsPending() {
		return nil, epperr.Newf(epperr.CodeObjectPendingTransfer,
			"Object with given ID (%s) already has a pending transfer", name)
	}
	if !fc.Superuser {
		if err := verifyNoDisallowedStatuses(&domain.ResourceBase, domainTransferDisallowedStatuses...); err != nil {
			return nil, err
		}
	}
	years, err := validatePeriod(cmd.Period)
	if err != nil {
		return nil, err
	}
	if years != 1 {
		return nil, epperr.New(epperr.CodeParameterValuePolicyError,
			"Transfers always renew a domain for one year")
	}

	expiration := fc.Now.Add(tld.PendingPeriod())
	losing := domain.SponsorRegistrar

	// Staged server-approve entities, invisible until the transfer resolves
	// in the gaining registrar's favor.
	approveBilling := model.BillingEvent{
		ID:           fc.IDs.EntityID(),
		Reason:       model.BillingTransfer,
		Registrar:    fc.Registrar,
		DomainRepoID: domain.RepoID,
		EventTime:    expiration,
		PeriodYears:  1,
		Pending:      true,
	}
	if err := store.Put(ctx, fc.Tx, store.Key{Kind: store.KindBillingEvent, ID: approveBilling.ID}, &approveBilling); err != nil {
		return nil, err
	}
	approveGainingPoll := model.PollMessage{
		ID:             fc.IDs.EntityID(),
		Registrar:      fc.Registrar,
		EventTime:      expiration,
		Message:        "Transfer approved.",
		ResourceRepoID: domain.RepoID,
		Pending:        true,
	}
	if err := writePollMessage(ctx, fc, approveGainingPoll); err != nil {
		return nil, err
	}
	approveLosingPoll := model.PollMessage{
		ID:             fc.IDs.EntityID(),
		Registrar:      losing,
		EventTime:      expiration,
		Message:        "Transfer approved.",
		ResourceRepoID: domain.RepoID,
		Pending:        true,
	}
	if err := writePollMessage(ctx, fc, approveLosingPoll); err != nil {
		return nil, err
	}
	// The losing registrar learns about the request right away.
	if err := writePollMessage(ctx, fc, model.PollMessage{
		ID:             fc.IDs.EntityID(),
		Registrar:      losing,
		EventTime:      fc.Now,
		Message:        "Transfer requested.",
		ResourceRepoID: domain.RepoID,
	}); err != nil {
		return nil, err
	}

	// The losing sponsor's autorenew recurrence ends at the automatic
	// transfer time, and the gaining registrar's replacement is staged
	// alongside the other server-approve entities. If the transfer resolves
	// against the gaining registrar these writes are undone; if the pending
	// period lapses, projection switches the domain onto the staged
	// recurrence with no further writes.
	if err := closeAutorenewEntities(ctx, fc, domain, expiration); err != nil {
		return nil, err
	}
	newExpiration := model.ExtendRegistrationWithCap(expiration, domain.RegistrationExpiration, 1)
	approveAutorenewBilling := model.BillingEvent{
		ID:            fc.IDs.EntityID(),
		Reason:        model.BillingAutorenew,
		Registrar:     fc.Registrar,
		DomainRepoID:  domain.RepoID,
		EventTime:     newExpiration,
		Recurring:     true,
		RecurrenceEnd: model.EndOfTime,
	}
	if err := store.Put(ctx, fc.Tx, store.Key{Kind: store.KindBillingEvent, ID: approveAutorenewBilling.ID}, &approveAutorenewBilling); err != nil {
		return nil, err
	}
	approveAutorenewPoll := model.PollMessage{
		ID:             fc.IDs.EntityID(),
		Registrar:      fc.Registrar,
		EventTime:      newExpiration,
		Message:        "Domain was auto-renewed.",
		ResourceRepoID: domain.RepoID,
		Autorenew:      true,
		RecurrenceEnd:  model.EndOfTime,
	}
	if err := writePollMessage(ctx, fc, approveAutorenewPoll); err != nil {
		return nil, err
	}

	domain.Transfer = model.TransferData{
		Status:                          model.TransferPending,
		GainingRegistrar:                fc.Registrar,
		LosingRegistrar:                 losing,
		RequestTime:                     fc.Now,
		PendingExpirationTime:           expiration,
		ServerApproveBillingEventID:     approveBilling.ID,
		ServerApproveGainingPollID:      approveGainingPoll.ID,
		ServerApproveLosingPollID:       approveLosingPoll.ID,
		ServerApproveAutorenewBillingID: approveAutorenewBilling.ID,
		ServerApproveAutorenewPollID:    approveAutorenewPoll.ID,
	}
	domain.AddStatus(model.StatusPendingTransfer)
	if err := saveDomain(ctx, fc.Tx, domain); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryDomainTransferRequest, domain.RepoID)); err != nil {
		return nil, err
	}

	resData := transferResData(domain)
	resData.ExpirationDate = epp.OptTime(
		model.ExtendRegistrationWithCap(fc.Now, domain.RegistrationExpiration, 1))
	return epp.Success(epperr.CodeSuccessActionPending, resData), nil
}

// domainTransferApproveFlow lets the losing sponsor approve a pending
// transfer explicitly, at the approval time rather than the pending
// period's end.
type domainTransferApproveFlow struct{}

func (domainTransferApproveFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *domainTransferApproveFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	name := fc.Command.DomainTransfer.Name

	domain, err := loadPendingTransferDomain(ctx, fc, name)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifyResourceOwnership(fc.Registrar, domain.SponsorRegistrar); err != nil {
			return nil, err
		}
	}
	td := domain.Transfer

	// Promote the staged billing event and the gaining registrar's approval
	// message to the actual approval time.
	billingKey := store.Key{Kind: store.KindBillingEvent, ID: td.ServerApproveBillingEventID}
	billing, err := store.Get[model.BillingEvent](ctx, fc.Tx, billingKey)
	if err != nil {
		return nil, err
	}
	billing.Pending = false
	billing.EventTime = fc.Now
	if err := store.Put(ctx, fc.Tx, billingKey, billing); err != nil {
		return nil, err
	}
	pollKey := store.Key{Kind: store.KindPollMessage, ID: td.ServerApproveGainingPollID}
	poll, err := store.Get[model.PollMessage](ctx, fc.Tx, pollKey)
	if err != nil {
		return nil, err
	}
	poll.Pending = false
	poll.EventTime = fc.Now
	if err := store.Put(ctx, fc.Tx, pollKey, poll); err != nil {
		return nil, err
	}
	// The losing registrar is the approver; its staged notice is redundant.
	if err := fc.Tx.Delete(ctx, store.Key{Kind: store.KindPollMessage, ID: td.ServerApproveLosingPollID}); err != nil {
		return nil, err
	}
	// The staged autorenew recurrence assumed the automatic transfer time;
	// explicit approval re-times the handover at now, so the staged entities
	// give way to fresh ones below.
	if err := deleteStagedAutorenewEntities(ctx, fc, td); err != nil {
		return nil, err
	}

	// Sponsorship changes, so the old autorenew recurrence closes and a new
	// one opens for the gaining registrar. This mirrors the implicit server
	// approval the projection applies at the pending period's end.
	if err := closeAutorenewEntities(ctx, fc, domain, fc.Now); err != nil {
		return nil, err
	}
	domain.SponsorRegistrar = td.GainingRegistrar
	domain.LastTransferTime = fc.Now
	domain.RemoveStatus(model.StatusPendingTransfer)
	domain.RegistrationExpiration = model.ExtendRegistrationWithCap(fc.Now, domain.RegistrationExpiration, 1)
	domain.Transfer.Status = model.TransferClientApproved
	domain.Transfer.ClearServerApproveRefs()
	if err := createAutorenewEntities(ctx, fc, domain); err != nil {
		return nil, err
	}
	domain.LastUpdateTime = fc.Now
	domain.LastUpdateRegistrar = fc.Registrar
	if err := saveDomain(ctx, fc.Tx, domain); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryDomainTransferApprove, domain.RepoID)); err != nil {
		return nil, err
	}
	return epp.Success(epperr.CodeSuccess, transferResData(domain)), nil
}

// domainTransferRejectFlow lets the losing sponsor reject a pending
// transfer, dropping the staged server-approve entities.
type domainTransferRejectFlow struct{}

func (domainTransferRejectFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *domainTransferRejectFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	name := fc.Command.DomainTransfer.Name

	domain, err := loadPendingTransferDomain(ctx, fc, name)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifyResourceOwnership(fc.Registrar, domain.SponsorRegistrar); err != nil {
			return nil, err
		}
	}
	gaining := domain.Transfer.GainingRegistrar
	if err := cancelPendingTransfer(ctx, fc, domain, model.TransferClientRejected); err != nil {
		return nil, err
	}
	if err := writePollMessage(ctx, fc, model.PollMessage{
		ID:             fc.IDs.EntityID(),
		Registrar:      gaining,
		EventTime:      fc.Now,
		Message:        "Transfer rejected.",
		ResourceRepoID: domain.RepoID,
	}); err != nil {
		return nil, err
	}
	domain.LastUpdateTime = fc.Now
	domain.LastUpdateRegistrar = fc.Registrar
	if err := saveDomain(ctx, fc.Tx, domain); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryDomainTransferReject, domain.RepoID)); err != nil {
		return nil, err
	}
	return epp.Success(epperr.CodeSuccess, transferResData(domain)), nil
}

// domainTransferCancelFlow lets the gaining registrar withdraw its own
// pending request.
type domainTransferCancelFlow struct{}

func (domainTransferCancelFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *domainTransferCancelFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	name := fc.Command.DomainTransfer.Name

	domain, err := loadPendingTransferDomain(ctx, fc, name)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser && fc.Registrar != domain.Transfer.GainingRegistrar {
		return nil, epperr.New(epperr.CodeAuthorizationError,
			"Registrar is not the initiator of this transfer")
	}
	losing := domain.Transfer.LosingRegistrar
	if err := cancelPendingTransfer(ctx, fc, domain, model.TransferClientCancelled); err != nil {
		return nil, err
	}
	if err := writePollMessage(ctx, fc, model.PollMessage{
		ID:             fc.IDs.EntityID(),
		Registrar:      losing,
		EventTime:      fc.Now,
		Message:        "Transfer cancelled.",
		ResourceRepoID: domain.RepoID,
	}); err != nil {
		return nil, err
	}
	domain.LastUpdateTime = fc.Now
	domain.LastUpdateRegistrar = fc.Registrar
	if err := saveDomain(ctx, fc.Tx, domain); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryDomainTransferCancel, domain.RepoID)); err != nil {
		return nil, err
	}
	return epp.Success(epperr.CodeSuccess, transferResData(domain)), nil
}

// loadPendingTransferDomain loads a domain that must have a pending
// transfer at now. Projection makes this self-limiting: past the pending
// expiration the transfer already reads as server-approved and the flow
// reports nothing pending.
func loadPendingTransferDomain(ctx context.Context, fc *Context, name string) (*model.Domain, error) {
	if _, _, err := validateDomainName(name, fc.Registries); err != nil {
		return nil, err
	}
	domain, err := loadDomainByName(ctx, fc.Tx, name, fc.Now)
	if err != nil {
		return nil, err
	}
	if !domain.Transfer.IsPending() {
		return nil, epperr.Newf(epperr.CodeObjectNotPendingTransfer,
			"Object with given ID (%s) does not have a pending transfer", name)
	}
	return domain, nil
}

// cancelPendingTransfer resolves a pending transfer against the gaining
// registrar: staged server-approve entities are deleted and the pending
// status clears. The caller persists the domain and writes the counterpart
// notification.
func cancelPendingTransfer(ctx context.Context, fc *Context, domain *model.Domain, status model.TransferStatus) error {
	td := domain.Transfer
	if td.ServerApproveBillingEventID != "" {
		if err := fc.Tx.Delete(ctx, store.Key{Kind: store.KindBillingEvent, ID: td.ServerApproveBillingEventID}); err != nil {
			return err
		}
	}
	for _, pollID := range []string{td.ServerApproveGainingPollID, td.ServerApproveLosingPollID} {
		if pollID == "" {
			continue
		}
		if err := fc.Tx.Delete(ctx, store.Key{Kind: store.KindPollMessage, ID: pollID}); err != nil {
			return err
		}
	}
	if err := deleteStagedAutorenewEntities(ctx, fc, td); err != nil {
		return err
	}
	// The losing sponsor keeps the registration, so the recurrence that was
	// closed at the automatic transfer time reopens.
	if err := closeAutorenewEntities(ctx, fc, domain, model.EndOfTime); err != nil {
		return err
	}
	domain.Transfer.Status = status
	domain.Transfer.ClearServerApproveRefs()
	domain.RemoveStatus(model.StatusPendingTransfer)
	return nil
}

// deleteStagedAutorenewEntities drops the gaining registrar's staged
// autorenew recurrence when a pending transfer resolves by an explicit flow
// rather than by projection.
func deleteStagedAutorenewEntities(ctx context.Context, fc *Context, td model.TransferData) error {
	if td.ServerApproveAutorenewBillingID != "" {
		if err := fc.Tx.Delete(ctx, store.Key{Kind: store.KindBillingEvent, ID: td.ServerApproveAutorenewBillingID}); err != nil {
			return err
		}
	}
	if td.ServerApproveAutorenewPollID != "" {
		if err := fc.Tx.Delete(ctx, store.Key{Kind: store.KindPollMessage, ID: td.ServerApproveAutorenewPollID}); err != nil {
			return err
		}
	}
	return nil
}
