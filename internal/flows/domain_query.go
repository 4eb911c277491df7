package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

// domainInfoFlow returns the projected state of a domain, so an expired
// pending transfer or a lapsed registration reads exactly as the registry
// will eventually persist it.
type domainInfoFlow struct{}

func (domainInfoFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true}
}

func (f *domainInfoFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	name := fc.Command.DomainInfo.Name

	if _, _, err := validateDomainName(name, fc.Registries); err != nil {
		return nil, err
	}
	domain, err := loadDomainByName(ctx, fc.Tx, name, fc.Now)
	if err != nil {
		return nil, err
	}

	var ns *epp.DomainNS
	if len(domain.Nameservers) > 0 {
		ns = &epp.DomainNS{HostObjs: domain.Nameservers}
	}
	contacts := make([]epp.DomainContact, 0, len(domain.Contacts))
	for _, c := range domain.Contacts {
		contacts = append(contacts, epp.DomainContact{Type: string(c.Type), ID: c.ContactID})
	}
	return epp.Success(epperr.CodeSuccess, &epp.DomainInfoData{
		Name:              domain.ForeignKey,
		RepoID:            domain.RepoID,
		Statuses:          wireStatuses(&domain.ResourceBase),
		Registrant:        domain.Registrant,
		Contacts:          contacts,
		NS:                ns,
		SubordinateHosts:  domain.SubordinateHosts,
		SponsorRegistrar:  domain.SponsorRegistrar,
		CreationRegistrar: domain.CreationRegistrar,
		CreationDate:      epp.Time(domain.CreationTime),
		UpdateRegistrar:   domain.LastUpdateRegistrar,
		UpdateDate:        epp.OptTime(domain.LastUpdateTime),
		ExpirationDate:    epp.Time(domain.RegistrationExpiration),
		TransferDate:      epp.OptTime(domain.LastTransferTime),
	}), nil
}

// domainCheckFlow reports availability for up to 50 domain names, folding
// in reservation policy.
type domainCheckFlow struct{}

func (domainCheckFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true}
}

func (f *domainCheckFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	names := fc.Command.DomainCheck.Names

	if err := verifyCheckCount(len(names)); err != nil {
		return nil, err
	}
	results := make([]epp.CheckResult, 0, len(names))
	for _, name := range names {
		tld, label, err := validateDomainName(name, fc.Registries)
		if err != nil {
			return nil, err
		}
		result := epp.CheckResult{Name: epp.CheckName{Value: name}}
		switch {
		case tld.IsReserved(label):
			result.Reason = "Reserved"
		default:
			_, taken, err := activeRepoID(ctx, fc.Tx, store.KindDomain, name, fc.Now)
			if err != nil {
				return nil, err
			}
			if taken {
				result.Reason = "In use"
			} else {
				result.Name.Available = true
			}
		}
		results = append(results, result)
	}
	return epp.Success(epperr.CodeSuccess, &epp.DomainCheckData{Results: results}), nil
}
