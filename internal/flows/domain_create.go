package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/queue"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

// domainCreateFlow registers a domain under one of our TLDs, charging a
// create billing event and opening the autorenew recurrence.
type domainCreateFlow struct{}

func (domainCreateFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *domainCreateFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	cmd := fc.Command.DomainCreate
	name := cmd.Name

	tld, label, err := validateDomainName(name, fc.Registries)
	if err != nil {
		return nil, err
	}
	if err := verifyRegistrarAllowedOnTLD(ctx, fc, tld.Name); err != nil {
		return nil, err
	}
	if tld.IsReserved(label) {
		return nil, epperr.Newf(epperr.CodeParameterValuePolicyError,
			"%s is a reserved domain", name)
	}
	if err := verifyResourceDoesNotExist(ctx, fc.Tx, store.KindDomain, name, fc.Now); err != nil {
		return nil, err
	}
	years, err := validatePeriod(cmd.Period)
	if err != nil {
		return nil, err
	}
	contacts := designatedContacts(cmd.Contacts)
	if err := validateContactReferences(ctx, fc, cmd.Registrant, contacts); err != nil {
		return nil, err
	}
	nameservers := nameserversOf(cmd.NS)
	if err := validateNameserverReferences(ctx, fc, nameservers); err != nil {
		return nil, err
	}

	domain := &model.Domain{
		ResourceBase: model.ResourceBase{
			RepoID:            fc.IDs.RepoID(tld.RoidSuffix),
			ForeignKey:        name,
			CreationTime:      fc.Now,
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: fc.Registrar,
			SponsorRegistrar:  fc.Registrar,
		},
		TLD:                    tld.Name,
		Registrant:             cmd.Registrant,
		Contacts:               contacts,
		Nameservers:            nameservers,
		RegistrationExpiration: fc.Now.AddDate(years, 0, 0),
	}
	if len(nameservers) == 0 {
		domain.AddStatus(model.StatusInactive)
	}

	billing := model.BillingEvent{
		ID:           fc.IDs.EntityID(),
		Reason:       model.BillingCreate,
		Registrar:    fc.Registrar,
		DomainRepoID: domain.RepoID,
		EventTime:    fc.Now,
		PeriodYears:  years,
	}
	if err := store.Put(ctx, fc.Tx, store.Key{Kind: store.KindBillingEvent, ID: billing.ID}, &billing); err != nil {
		return nil, err
	}
	if err := createAutorenewEntities(ctx, fc, domain); err != nil {
		return nil, err
	}
	if err := saveDomain(ctx, fc.Tx, domain); err != nil {
		return nil, err
	}
	if err := installForeignKey(ctx, fc.Tx, store.KindDomain, name, domain.RepoID); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryDomainCreate, domain.RepoID)); err != nil {
		return nil, err
	}
	fc.RefreshDNS(queue.RefreshDomain, name, tld.Name)

	return epp.Success(epperr.CodeSuccess, &epp.DomainCreateData{
		Name:           name,
		CreationDate:   epp.Time(fc.Now),
		ExpirationDate: epp.Time(domain.RegistrationExpiration),
	}), nil
}

func designatedContacts(wire []epp.DomainContact) []model.DesignatedContact {
	out := make([]model.DesignatedContact, 0, len(wire))
	for _, c := range wire {
		out = append(out, model.DesignatedContact{
			Type:      model.DesignatedContactType(c.Type),
			ContactID: c.ID,
		})
	}
	return out
}

func nameserversOf(ns *epp.DomainNS) []string {
	if ns == nil {
		return nil
	}
	return ns.HostObjs
}
