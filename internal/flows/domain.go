package flows

import (
	"context"
	"strings"
	"time"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

// validatePeriod checks a registration period element: years only, at least
// one year, and no further out than the registration cap allows.
func validatePeriod(p *epp.Period) (int, error) {
	if p != nil && p.Unit != "" && p.Unit != "y" {
		return 0, epperr.New(epperr.CodeParameterValueRangeError,
			"Periods for domain registrations must be specified in years")
	}
	years := p.Years()
	if years < 1 {
		return 0, epperr.New(epperr.CodeParameterValueRangeError,
			"Periods for domain registrations must be at least one year")
	}
	if years > model.MaxRegistrationYears {
		return 0, epperr.New(epperr.CodeParameterValueRangeError,
			"Registrations cannot extend for more than 10 years from now")
	}
	return years, nil
}

// verifyRegistrarAllowedOnTLD checks the acting registrar's TLD allow list.
func verifyRegistrarAllowedOnTLD(ctx context.Context, fc *Context, tld string) error {
	if fc.Superuser {
		return nil
	}
	registrar, err := store.Get[model.Registrar](ctx, fc.Tx,
		store.Key{Kind: store.KindRegistrar, ID: fc.Registrar})
	if err != nil {
		return err
	}
	if !registrar.MayActOn(tld) {
		return epperr.Newf(epperr.CodeAuthorizationError,
			"Registrar is not authorized to access the TLD %s", tld)
	}
	return nil
}

// validateContactReferences checks that the registrant plus admin and tech
// contacts all reference active contacts that are not dying.
func validateContactReferences(ctx context.Context, fc *Context, registrant string, contacts []model.DesignatedContact) error {
	if registrant == "" {
		return epperr.New(epperr.CodeRequiredParameterMissing, "Registrant is required")
	}
	var hasAdmin, hasTech bool
	for _, c := range contacts {
		switch c.Type {
		case model.ContactAdmin:
			hasAdmin = true
		case model.ContactTech:
			hasTech = true
		default:
			return epperr.Newf(epperr.CodeParameterValueSyntaxError,
				"Unknown contact type %s", c.Type)
		}
	}
	if !hasAdmin {
		return epperr.New(epperr.CodeRequiredParameterMissing, "Admin contact is required")
	}
	if !hasTech {
		return epperr.New(epperr.CodeRequiredParameterMissing, "Technical contact is required")
	}
	ids := []string{registrant}
	for _, c := range contacts {
		ids = append(ids, c.ContactID)
	}
	var missing []string
	for _, id := range ids {
		contact, err := loadContactByID(ctx, fc.Tx, id, fc.Now)
		if epperr.HasCode(err, epperr.CodeObjectDoesNotExist) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return err
		}
		if contact.HasStatus(model.StatusPendingDelete) {
			return epperr.Newf(epperr.CodeStatusProhibitsOperation,
				"Linked resource in pending delete prohibits operation: %s", id)
		}
	}
	if len(missing) > 0 {
		return epperr.Newf(epperr.CodeObjectDoesNotExist,
			"Linked resources do not exist: %s", strings.Join(missing, ", "))
	}
	return nil
}

// validateNameserverReferences checks the nameserver count cap and that each
// referenced host is active and not dying.
func validateNameserverReferences(ctx context.Context, fc *Context, nameservers []string) error {
	if len(nameservers) > model.MaxNameservers {
		return epperr.Newf(epperr.CodeParameterValuePolicyError,
			"Only %d nameservers are allowed per domain", model.MaxNameservers)
	}
	var missing []string
	for _, ns := range nameservers {
		if err := validateHostName(ns, fc.Registries); err != nil {
			return err
		}
		host, err := loadHostByName(ctx, fc.Tx, ns, fc.Now)
		if epperr.HasCode(err, epperr.CodeObjectDoesNotExist) {
			missing = append(missing, ns)
			continue
		}
		if err != nil {
			return err
		}
		if host.HasStatus(model.StatusPendingDelete) {
			return epperr.Newf(epperr.CodeStatusProhibitsOperation,
				"Linked resource in pending delete prohibits operation: %s", ns)
		}
	}
	if len(missing) > 0 {
		return epperr.Newf(epperr.CodeObjectDoesNotExist,
			"Linked resources do not exist: %s", strings.Join(missing, ", "))
	}
	return nil
}

// createAutorenewEntities writes the recurring autorenew billing event and
// poll message for a domain and records their ids on it.
func createAutorenewEntities(ctx context.Context, fc *Context, domain *model.Domain) error {
	billing := model.BillingEvent{
		ID:            fc.IDs.EntityID(),
		Reason:        model.BillingAutorenew,
		Registrar:     domain.SponsorRegistrar,
		DomainRepoID:  domain.RepoID,
		EventTime:     domain.RegistrationExpiration,
		Recurring:     true,
		RecurrenceEnd: model.EndOfTime,
	}
	poll := model.PollMessage{
		ID:             fc.IDs.EntityID(),
		Registrar:      domain.SponsorRegistrar,
		EventTime:      domain.RegistrationExpiration,
		Message:        "Domain was auto-renewed.",
		ResourceRepoID: domain.RepoID,
		Autorenew:      true,
		RecurrenceEnd:  model.EndOfTime,
	}
	if err := store.Put(ctx, fc.Tx, store.Key{Kind: store.KindBillingEvent, ID: billing.ID}, &billing); err != nil {
		return err
	}
	if err := store.Put(ctx, fc.Tx, store.Key{Kind: store.KindPollMessage, ID: poll.ID}, &poll); err != nil {
		return err
	}
	domain.AutorenewBillingEventID = billing.ID
	domain.AutorenewPollMessageID = poll.ID
	return nil
}

// closeAutorenewEntities ends a domain's autorenew recurrences as of end.
// Used on delete and on sponsorship changes, where a fresh recurrence for
// the new sponsor follows.
func closeAutorenewEntities(ctx context.Context, fc *Context, domain *model.Domain, end time.Time) error {
	if domain.AutorenewBillingEventID != "" {
		key := store.Key{Kind: store.KindBillingEvent, ID: domain.AutorenewBillingEventID}
		billing, err := store.Get[model.BillingEvent](ctx, fc.Tx, key)
		if err != nil {
			return err
		}
		billing.RecurrenceEnd = end
		if err := store.Put(ctx, fc.Tx, key, billing); err != nil {
			return err
		}
	}
	if domain.AutorenewPollMessageID != "" {
		key := store.Key{Kind: store.KindPollMessage, ID: domain.AutorenewPollMessageID}
		poll, err := store.Get[model.PollMessage](ctx, fc.Tx, key)
		if err != nil {
			return err
		}
		poll.RecurrenceEnd = end
		if err := store.Put(ctx, fc.Tx, key, poll); err != nil {
			return err
		}
	}
	return nil
}

// writePollMessage persists a one-time poll message.
func writePollMessage(ctx context.Context, fc *Context, msg model.PollMessage) error {
	return store.Put(ctx, fc.Tx, store.Key{Kind: store.KindPollMessage, ID: msg.ID}, &msg)
}

// transferResData renders a domain's transfer state for transfer responses.
func transferResData(domain *model.Domain) *epp.DomainTransferData {
	td := domain.Transfer
	actionDate := td.PendingExpirationTime
	return &epp.DomainTransferData{
		Name:           domain.ForeignKey,
		TransferStatus: string(td.Status),
		GainingID:      td.GainingRegistrar,
		RequestDate:    epp.Time(td.RequestTime),
		LosingID:       td.LosingRegistrar,
		ActionDate:     epp.Time(actionDate),
		ExpirationDate: epp.OptTime(domain.RegistrationExpiration),
	}
}
