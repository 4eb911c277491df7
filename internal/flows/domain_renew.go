package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

var domainRenewDisallowedStatuses = []model.StatusValue{
	model.StatusPendingDelete,
	model.StatusClientRenewProhibited,
	model.StatusServerRenewProhibited,
}

// domainRenewFlow extends a registration by whole years, charging a renew
// billing event. The registration may never extend past ten years from the
// moment of renewal.
type domainRenewFlow struct{}

func (domainRenewFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *domainRenewFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	cmd := fc.Command.DomainRenew
	name := cmd.Name

	if _, _, err := validateDomainName(name, fc.Registries); err != nil {
		return nil, err
	}
	domain, err := loadDomainByName(ctx, fc.Tx, name, fc.Now)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifyNoDisallowedStatuses(&domain.ResourceBase, domainRenewDisallowedStatuses...); err != nil {
			return nil, err
		}
		if err := verifyResourceOwnership(fc.Registrar, domain.SponsorRegistrar); err != nil {
			return nil, err
		}
	}
	if domain.Transfer.IsPending() {
		return nil, epperr.New(epperr.CodeStatusProhibitsOperation,
			"The domain has a pending transfer")
	}
	years, err := validatePeriod(cmd.Period)
	if err != nil {
		return nil, err
	}
	// The client passes the expiration it believes is current; a mismatch
	// means it renewed against stale data.
	if cmd.CurExpDate != domain.RegistrationExpiration.Format("2006-01-02") {
		return nil, epperr.New(epperr.CodeParameterValuePolicyError,
			"The current expiration date is incorrect")
	}
	newExpiration := domain.RegistrationExpiration.AddDate(years, 0, 0)
	if newExpiration.After(fc.Now.AddDate(model.MaxRegistrationYears, 0, 0)) {
		return nil, epperr.New(epperr.CodeParameterValueRangeError,
			"Registrations cannot extend for more than 10 years from now")
	}

	billing := model.BillingEvent{
		ID:           fc.IDs.EntityID(),
		Reason:       model.BillingRenew,
		Registrar:    fc.Registrar,
		DomainRepoID: domain.RepoID,
		EventTime:    fc.Now,
		PeriodYears:  years,
	}
	if err := store.Put(ctx, fc.Tx, store.Key{Kind: store.KindBillingEvent, ID: billing.ID}, &billing); err != nil {
		return nil, err
	}
	domain.RegistrationExpiration = newExpiration
	domain.LastUpdateTime = fc.Now
	domain.LastUpdateRegistrar = fc.Registrar
	if err := saveDomain(ctx, fc.Tx, domain); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryDomainRenew, domain.RepoID)); err != nil {
		return nil, err
	}
	return epp.Success(epperr.CodeSuccess, &epp.DomainRenewData{
		Name:           name,
		ExpirationDate: epp.Time(newExpiration),
	}), nil
}
