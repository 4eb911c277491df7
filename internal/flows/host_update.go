package flows

import (
	"context"
	"net/netip"
	"slices"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/queue"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

var hostUpdateDisallowedStatuses = []model.StatusValue{
	model.StatusPendingDelete,
	model.StatusClientUpdateProhibited,
	model.StatusServerUpdateProhibited,
}

// hostUpdateFlow updates a host: glue addresses, client-settable statuses,
// and renames. A rename may re-parent the host onto a different
// superordinate domain (or make it external), which updates the subordinate
// host bookkeeping on both domains and freezes the transfer time the host
// inherited from the domain it is leaving.
type hostUpdateFlow struct{}

func (hostUpdateFlow) Capabilities() Capabilities {
	return Capabilities{RequiresLogin: true, IsTransactional: true, MutatesState: true}
}

func (f *hostUpdateFlow) Run(ctx context.Context, fc *Context) (*epp.Response, error) {
	cmd := fc.Command.HostUpdate
	oldName := cmd.Name

	if err := validateHostName(oldName, fc.Registries); err != nil {
		return nil, err
	}
	newName := oldName
	if cmd.Change != nil && cmd.Change.Name != "" {
		newName = cmd.Change.Name
		if err := validateHostName(newName, fc.Registries); err != nil {
			return nil, err
		}
	}
	renamed := newName != oldName

	host, err := loadHostByName(ctx, fc.Tx, oldName, fc.Now)
	if err != nil {
		return nil, err
	}
	if renamed {
		if err := verifyResourceDoesNotExist(ctx, fc.Tx, store.KindHost, newName, fc.Now); err != nil {
			return nil, err
		}
	}
	if !fc.Superuser {
		if err := verifyNoDisallowedStatuses(&host.ResourceBase, hostUpdateDisallowedStatuses...); err != nil {
			return nil, err
		}
	}

	var oldSuperordinate *model.Domain
	if host.IsSubordinate() {
		oldSuperordinate, err = loadDomainByName(ctx, fc.Tx, host.SuperordinateDomain, fc.Now)
		if err != nil {
			return nil, err
		}
	}
	if !fc.Superuser {
		if err := verifyResourceOwnership(fc.Registrar, hostOwner(host, oldSuperordinate)); err != nil {
			return nil, err
		}
	}

	addAddrs, remAddrs, err := parseAddrChanges(cmd)
	if err != nil {
		return nil, err
	}
	addStatuses, remStatuses, err := parseStatusChanges(statusesOf(cmd.Add), statusesOf(cmd.Remove), fc.Superuser)
	if err != nil {
		return nil, err
	}

	newSuperordinate := oldSuperordinate
	newTLD, hasNewTLD := fc.Registries.FindTLDForName(newName)
	if renamed {
		newSuperordinate, _, err = lookupSuperordinateDomain(ctx, fc, newName)
		if err != nil {
			return nil, err
		}
		if err := verifySuperordinateDomainNotInPendingDelete(newSuperordinate); err != nil {
			return nil, err
		}
		if !fc.Superuser {
			if err := verifySuperordinateDomainOwnership(fc.Registrar, newSuperordinate); err != nil {
				return nil, err
			}
		}
	}

	host.ForeignKey = newName

	// On a superordinate change the transfer time the host observed through
	// its old domain must be frozen before the link moves; after the move
	// the old domain's transfers no longer apply to this host.
	newSuperName := ""
	if newSuperordinate != nil {
		newSuperName = newSuperordinate.ForeignKey
	}
	if newSuperName != host.SuperordinateDomain {
		host.LastTransferTime = host.ComputeLastTransferTime(oldSuperordinate)
		host.LastSuperordinateChange = fc.Now
		host.SuperordinateDomain = newSuperName
	}

	host.Addresses = applyAddrChanges(host.Addresses, addAddrs, remAddrs)
	if err := verifyHostAddrInvariant(host, renamed, len(addAddrs) > 0); err != nil {
		return nil, err
	}
	for _, s := range remStatuses {
		host.RemoveStatus(s)
	}
	for _, s := range addStatuses {
		host.AddStatus(s)
	}
	host.LastUpdateTime = fc.Now
	host.LastUpdateRegistrar = fc.Registrar

	if renamed {
		if err := retireForeignKey(ctx, fc.Tx, store.KindHost, oldName, fc.Now); err != nil {
			return nil, err
		}
		if err := installForeignKey(ctx, fc.Tx, store.KindHost, newName, host.RepoID); err != nil {
			return nil, err
		}
	}
	if err := updateSubordinateSets(ctx, fc, oldSuperordinate, newSuperordinate, oldName, newName); err != nil {
		return nil, err
	}
	if err := saveHost(ctx, fc.Tx, host); err != nil {
		return nil, err
	}
	if err := fc.RecordHistory(ctx, fc.NewHistoryEntry(model.HistoryHostUpdate, host.RepoID)); err != nil {
		return nil, err
	}

	if oldSuperordinate != nil {
		if oldTLD, ok := fc.Registries.FindTLDForName(oldName); ok {
			fc.RefreshDNS(queue.RefreshHost, oldName, oldTLD.Name)
		}
	}
	if newSuperordinate != nil && hasNewTLD {
		fc.RefreshDNS(queue.RefreshHost, newName, newTLD.Name)
	}
	return epp.Success(epperr.CodeSuccess, nil), nil
}

// updateSubordinateSets keeps both domains' subordinate host sets in step
// with a rename or re-parenting. When old and new superordinate are the same
// domain both edits land on one entity version.
func updateSubordinateSets(ctx context.Context, fc *Context, oldSuper, newSuper *model.Domain, oldName, newName string) error {
	if oldSuper == nil && newSuper == nil {
		return nil
	}
	if oldSuper != nil && newSuper != nil && oldSuper.RepoID == newSuper.RepoID {
		if oldName == newName {
			return nil
		}
		newSuper.RemoveSubordinateHost(oldName)
		newSuper.AddSubordinateHost(newName)
		return saveDomain(ctx, fc.Tx, newSuper)
	}
	if oldSuper != nil {
		oldSuper.RemoveSubordinateHost(oldName)
		if err := saveDomain(ctx, fc.Tx, oldSuper); err != nil {
			return err
		}
	}
	if newSuper != nil {
		newSuper.AddSubordinateHost(newName)
		if err := saveDomain(ctx, fc.Tx, newSuper); err != nil {
			return err
		}
	}
	return nil
}

func statusesOf(ar *epp.HostAddRemove) []epp.StatusElem {
	if ar == nil {
		return nil
	}
	return ar.Statuses
}

func parseAddrChanges(cmd *epp.HostUpdate) (add, remove []netip.Addr, err error) {
	if cmd.Add != nil {
		if add, err = parseAddrs(cmd.Add.Addrs); err != nil {
			return nil, nil, err
		}
	}
	if cmd.Remove != nil {
		if remove, err = parseAddrs(cmd.Remove.Addrs); err != nil {
			return nil, nil, err
		}
	}
	if err := verifyAddRemoveDisjoint(add, remove); err != nil {
		return nil, nil, err
	}
	return add, remove, nil
}

func applyAddrChanges(addrs, add, remove []netip.Addr) []netip.Addr {
	out := slices.DeleteFunc(slices.Clone(addrs), func(a netip.Addr) bool {
		return slices.Contains(remove, a)
	})
	for _, a := range add {
		if !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// verifyHostAddrInvariant re-checks the subordinate/external address rule on
// the updated host.
func verifyHostAddrInvariant(h *model.Host, renamed, addedAddrs bool) error {
	if h.IsSubordinate() {
		if len(h.Addresses) == 0 {
			return epperr.New(epperr.CodeStatusProhibitsOperation,
				"Cannot remove the last ip address of a subordinate host")
		}
		return nil
	}
	if len(h.Addresses) == 0 {
		return nil
	}
	if renamed {
		return epperr.New(epperr.CodeParameterValueRangeError,
			"Host rename from subordinate to external must also remove all ip addresses")
	}
	if addedAddrs {
		return epperr.New(epperr.CodeParameterValueRangeError,
			"Cannot add ip addresses to external hosts")
	}
	return epperr.New(epperr.CodeParameterValueRangeError,
		"External hosts must not have ip addresses")
}

// parseStatusChanges parses added and removed statuses as one unit so the
// disjointness rule applies across both lists.
func parseStatusChanges(add, remove []epp.StatusElem, superuser bool) (added, removed []model.StatusValue, err error) {
	if added, err = parseStatusValues(add, superuser); err != nil {
		return nil, nil, err
	}
	if removed, err = parseStatusValues(remove, superuser); err != nil {
		return nil, nil, err
	}
	if err := verifyAddRemoveDisjoint(added, removed); err != nil {
		return nil, nil, err
	}
	return added, removed, nil
}
