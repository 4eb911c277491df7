package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/queue"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

// hostCreateFlow creates a host. Subordinate hosts (under a TLD we run) must
// carry at least one glue address and their superordinate domain must exist,
// be sponsored by the creating registrar, and not be dying; external hosts
// must carry none.
type hostCreateFlow struct{}

func (hostCreateFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *hostCreateFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	cmd := fc.Command.HostCreate
	name := cmd.Name

	if err := validateHostName(name, fc.Registries); err != nil {
		return nil, err
	}
	if err := verifyResourceDoesNotExist(ctx, fc.Tx, store.KindHost, name, fc.Now); err != nil {
		return nil, err
	}
	superordinate, tld, err := lookupSuperordinateDomain(ctx, fc, name)
	if err != nil {
		return nil, err
	}
	if err := verifySuperordinateDomainNotInPendingDelete(superordinate); err != nil {
		return nil, err
	}
	if !fc.Superuser {
		if err := verifySuperordinateDomainOwnership(fc.Registrar, superordinate); err != nil {
			return nil, err
		}
	}
	addrs, err := parseAddrs(cmd.Addrs)
	if err != nil {
		return nil, err
	}
	if superordinate != nil && len(addrs) == 0 {
		return nil, epperr.New(epperr.CodeRequiredParameterMissing,
			"Subordinate hosts must have an ip address")
	}
	if superordinate == nil && len(addrs) > 0 {
		return nil, epperr.New(epperr.CodeParameterValueRangeError,
			"External hosts must not have ip addresses")
	}

	host := &model.Host{
		ResourceBase: model.ResourceBase{
			RepoID:            fc.IDs.RepoID(DefaultRoidSuffix),
			ForeignKey:        name,
			CreationTime:      fc.Now,
			DeletionTime:      model.EndOfTime,
			CreationRegistrar: fc.Registrar,
			SponsorRegistrar:  fc.Registrar,
		},
		Addresses: addrs,
	}
	if superordinate != nil {
		host.SuperordinateDomain = superordinate.ForeignKey
		superordinate.AddSubordinateHost(name)
		if err := saveDomain(ctx, fc.Tx, superordinate); err != nil {
			return nil, err
		}
	}
	if err := saveHost(ctx, fc.Tx, host); err != nil {
		return nil, err
	}
	if err := installForeignKey(ctx, fc.Tx, store.KindHost, name, host.RepoID); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryHostCreate, host.RepoID)); err != nil {
		return nil, err
	}
	// External hosts have no glue to publish; they appear in DNS only as NS
	// records on referencing domains.
	if superordinate != nil {
		fc.RefreshDNS(queue.RefreshHost, name, tld.Name)
	}
	return epp.Success(epperr.CodeSuccess, &epp.HostCreateData{
		Name:         name,
		CreationDate: epp.Time(fc.Now),
	}), nil
}
