package flows

import (
	"context"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

// hostInfoFlow returns the projected state of a host. The observable
// last-transfer time folds in transfers of the current superordinate domain,
// and a host referenced by any domain shows the linked status.
type hostInfoFlow struct{}

func (hostInfoFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true}
}

func (f *hostInfoFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	name := fc.Command.HostInfo.Name

	if err := validateHostName(name, fc.Registries); err != nil {
		return nil, err
	}
	host, err := loadHostByName(ctx, fc.Tx, name, fc.Now)
	if err != nil {
		return nil, err
	}
	var superordinate *model.Domain
	if host.IsSubordinate() {
		superordinate, err = loadDomainByName(ctx, fc.Tx, host.SuperordinateDomain, fc.Now)
		if err != nil {
			return nil, err
		}
	}
	linked, err := domainsReferencingHost(ctx, fc.Tx, name, fc)
	if err != nil {
		return nil, err
	}

	statuses := wireStatuses(&host.ResourceBase)
	if linked {
		statuses = append(statuses, epp.StatusElem{Value: string(model.StatusLinked)})
	}
	return epp.Success(epperr.CodeSuccess, &epp.HostInfoData{
		Name:              host.ForeignKey,
		RepoID:            host.RepoID,
		Statuses:          statuses,
		Addrs:             wireAddrs(host.Addresses),
		SponsorRegistrar:  host.SponsorRegistrar,
		CreationRegistrar: host.CreationRegistrar,
		CreationDate:      epp.Time(host.CreationTime),
		UpdateRegistrar:   host.LastUpdateRegistrar,
		UpdateDate:        epp.OptTime(host.LastUpdateTime),
		TransferDate:      epp.OptTime(host.ComputeLastTransferTime(superordinate)),
	}), nil
}

// hostCheckFlow reports foreign-key availability for up to 50 hostnames.
type hostCheckFlow struct{}

func (hostCheckFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true}
}

func (f *hostCheckFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	names := fc.Command.HostCheck.Names

	if err := verifyCheckCount(len(names)); err != nil {
		return nil, err
	}
	results := make([]epp.CheckResult, 0, len(names))
	for _, name := range names {
		if err := validateHostName(name, fc.Registries); err != nil {
			return nil, err
		}
		_, taken, err := activeRepoID(ctx, fc.Tx, store.KindHost, name, fc.Now)
		if err != nil {
			return nil, err
		}
		result := epp.CheckResult{Name: epp.CheckName{Available: !taken, Value: name}}
		if taken {
			result.Reason = "In use"
		}
		results = append(results, result)
	}
	return epp.Success(epperr.CodeSuccess, &epp.HostCheckData{Results: results}), nil
}
