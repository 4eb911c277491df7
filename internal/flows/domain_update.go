package flows

import (
	"context"
	"slices"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/queue"
	"registryd/pkg/epperr"
)

var domainUpdateDisallowedStatuses = []model.StatusValue{
	model.StatusPendingDelete,
	model.StatusClientUpdateProhibited,
	model.StatusServerUpdateProhibited,
}

// domainUpdateFlow updates a domain's nameservers, designated contacts,
// client-settable statuses, and registrant.
type domainUpdateFlow struct{}

func (domainUpdateFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *domainUpdateFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	cmd := fc.Command.DomainUpdate
	name := cmd.Name

	tld, _, err := validateDomainName(name, fc.Registries)
	if err != nil {
		return nil, err
	}
	domain, err := loadDomainByName(ctx, fc.Tx, name, fc.Now)
	if err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifyNoDisallowedStatuses(&domain.ResourceBase, domainUpdateDisallowedStatuses...); err != nil {
			return nil, err
		}
		if err := verifyResourceOwnership(fc.Registrar, domain.SponsorRegistrar); err != nil {
			return nil, err
		}
	}

	addNS, remNS := nameserversOf(nsOf(cmd.Add)), nameserversOf(nsOf(cmd.Remove))
	if err := verifyAddRemoveDisjoint(addNS, remNS); err != nil {
		return nil, err
	}
	addContacts, remContacts := contactsOf(cmd.Add), contactsOf(cmd.Remove)
	if err := verifyAddRemoveDisjoint(addContacts, remContacts); err != nil {
		return nil, err
	}
	addStatuses, remStatuses, err := parseStatusChanges(domainStatusesOf(cmd.Add), domainStatusesOf(cmd.Remove), fc.Superuser)
	if err != nil {
		return nil, err
	}
	if err := validateNameserverReferences(ctx, fc, addNS); err != nil {
		return nil, err
	}
	if err := validateContactReferencesForUpdate(ctx, fc, addContacts); err != nil {
		return nil, err
	}

	domain.Nameservers = applyListChanges(domain.Nameservers, addNS, remNS)
	if len(domain.Nameservers) > model.MaxNameservers {
		return nil, epperr.Newf(epperr.CodeParameterValuePolicyError,
			"Only %d nameservers are allowed per domain", model.MaxNameservers)
	}
	domain.Contacts = applyListChanges(domain.Contacts, addContacts, remContacts)
	for _, s := range remStatuses {
		domain.RemoveStatus(s)
	}
	for _, s := range addStatuses {
		domain.AddStatus(s)
	}
	if cmd.Change != nil && cmd.Change.Registrant != "" {
		if _, err := loadContactByID(ctx, fc.Tx, cmd.Change.Registrant, fc.Now); err != nil {
			return nil, err
		}
		domain.Registrant = cmd.Change.Registrant
	}
	if len(domain.Nameservers) == 0 {
		domain.AddStatus(model.StatusInactive)
	} else {
		domain.RemoveStatus(model.StatusInactive)
	}
	domain.LastUpdateTime = fc.Now
	domain.LastUpdateRegistrar = fc.Registrar

	if err := saveDomain(ctx, fc.Tx, domain); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryDomainUpdate, domain.RepoID)); err != nil {
		return nil, err
	}
	fc.RefreshDNS(queue.RefreshDomain, name, tld.Name)
	return epp.Success(epperr.CodeSuccess, nil), nil
}

// validateContactReferencesForUpdate checks added designated contacts only;
// updates need not resupply the full contact set.
func validateContactReferencesForUpdate(ctx context.Context, fc *Context, contacts []model.DesignatedContact) error {
	for _, c := range contacts {
		if c.Type != model.ContactAdmin && c.Type != model.ContactTech {
			return epperr.Newf(epperr.CodeParameterValueSyntaxError,
				"Unknown contact type %s", c.Type)
		}
		contact, err := loadContactByID(ctx, fc.Tx, c.ContactID, fc.Now)
		if err != nil {
			return err
		}
		if contact.HasStatus(model.StatusPendingDelete) {
			return epperr.Newf(epperr.CodeStatusProhibitsOperation,
				"Linked resource in pending delete prohibits operation: %s", c.ContactID)
		}
	}
	return nil
}

func applyListChanges[T comparable](current, add, remove []T) []T {
	out := slices.DeleteFunc(slices.Clone(current), func(v T) bool {
		return slices.Contains(remove, v)
	})
	for _, v := range add {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func nsOf(ar *epp.DomainAddRemove) *epp.DomainNS {
	if ar == nil {
		return nil
	}
	return ar.NS
}

func contactsOf(ar *epp.DomainAddRemove) []model.DesignatedContact {
	if ar == nil {
		return nil
	}
	return designatedContacts(ar.Contacts)
}

func domainStatusesOf(ar *epp.DomainAddRemove) []epp.StatusElem {
	if ar == nil {
		return nil
	}
	return ar.Statuses
}
