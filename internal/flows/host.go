package flows

import (
	"context"

	"registryd/internal/model"
	"registryd/internal/registries"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

// lookupSuperordinateDomain returns the projected superordinate domain for a
// hostname, or nil for external hosts (names under TLDs we don't run). A
// hostname under one of our TLDs whose enclosing domain is not registered is
// an error, not an external host.
func lookupSuperordinateDomain(ctx context.Context, fc *Context, hostname string) (*model.Domain, registries.TLD, error) {
	tld, ok := fc.Registries.FindTLDForName(hostname)
	if !ok {
		return nil, registries.TLD{}, nil
	}
	domainName, ok := registries.DomainNameUnder(hostname, tld)
	if !ok {
		return nil, registries.TLD{}, epperr.New(epperr.CodeParameterValuePolicyError,
			"Host names must be at least two levels below the public suffix")
	}
	domain, err := loadDomainByName(ctx, fc.Tx, domainName, fc.Now)
	if err != nil {
		return nil, registries.TLD{}, err
	}
	return domain, tld, nil
}

// verifySuperordinateDomainNotInPendingDelete blocks host mutations under a
// dying domain.
func verifySuperordinateDomainNotInPendingDelete(superordinate *model.Domain) error {
	if superordinate != nil && superordinate.HasStatus(model.StatusPendingDelete) {
		return epperr.New(epperr.CodeStatusProhibitsOperation,
			"Superordinate domain for this hostname is in pending delete")
	}
	return nil
}

// verifySuperordinateDomainOwnership requires the acting registrar to
// sponsor the domain a subordinate host sits under.
func verifySuperordinateDomainOwnership(registrar string, superordinate *model.Domain) error {
	if superordinate != nil && registrar != superordinate.SponsorRegistrar {
		return epperr.New(epperr.CodeAuthorizationError,
			"Domain for host is sponsored by another registrar")
	}
	return nil
}

// hostOwner is the resource whose sponsorship controls access to a host:
// subordinate hosts belong to whoever sponsors their superordinate domain.
func hostOwner(host *model.Host, superordinate *model.Domain) string {
	if superordinate != nil {
		return superordinate.SponsorRegistrar
	}
	return host.SponsorRegistrar
}

// domainsReferencingHost returns whether any active domain lists the
// hostname as a nameserver.
func domainsReferencingHost(ctx context.Context, tx store.Tx, hostname string, fc *Context) (bool, error) {
	ents, err := tx.Query(ctx, store.KindDomain, func(ent *store.Entity) bool {
		domain, err := store.Decode[model.Domain](ent)
		if err != nil {
			return false
		}
		if !domain.ActiveAt(fc.Now) {
			return false
		}
		for _, ns := range domain.Nameservers {
			if ns == hostname {
				return true
			}
		}
		return false
	})
	if err != nil {
		return false, err
	}
	return len(ents) > 0, nil
}
