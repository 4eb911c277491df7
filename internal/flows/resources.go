package flows

import (
	"context"
	"net/netip"
	"slices"
	"time"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

// maxChecks caps the targets of one check command.
const maxChecks = 50

func notExistError(kindName, foreignKey string) error {
	return epperr.Newf(epperr.CodeObjectDoesNotExist,
		"The %s with given ID (%s) doesn't exist.", kindName, foreignKey)
}

// activeRepoID resolves a foreign key to the repo id of the resource that
// actively holds it at now, via the foreign-key index.
func activeRepoID(ctx context.Context, tx store.Tx, kind store.Kind, foreignKey string, now time.Time) (string, bool, error) {
	key := store.Key{Kind: store.KindForeignKey, ID: store.FKIID(kind, foreignKey)}
	fki, err := store.Get[model.ForeignKeyIndex](ctx, tx, key)
	if store.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !fki.ActiveAt(now) {
		return "", false, nil
	}
	return fki.RepoID, true, nil
}

// verifyResourceDoesNotExist fails a create when the foreign key is taken.
func verifyResourceDoesNotExist(ctx context.Context, tx store.Tx, kind store.Kind, foreignKey string, now time.Time) error {
	_, exists, err := activeRepoID(ctx, tx, kind, foreignKey, now)
	if err != nil {
		return err
	}
	if exists {
		return epperr.Newf(epperr.CodeObjectExists,
			"Object with given ID (%s) already exists", foreignKey)
	}
	return nil
}

// loadHostByName loads the active host for a hostname, projected to now.
func loadHostByName(ctx context.Context, tx store.Tx, name string, now time.Time) (*model.Host, error) {
	repoID, ok, err := activeRepoID(ctx, tx, store.KindHost, name, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notExistError("host", name)
	}
	host, err := store.Get[model.Host](ctx, tx, store.Key{Kind: store.KindHost, ID: repoID})
	if err != nil {
		return nil, err
	}
	if !host.ActiveAt(now) {
		return nil, notExistError("host", name)
	}
	return host.ProjectAt(now), nil
}

// loadDomainByName loads the active domain for a name, projected to now.
func loadDomainByName(ctx context.Context, tx store.Tx, name string, now time.Time) (*model.Domain, error) {
	repoID, ok, err := activeRepoID(ctx, tx, store.KindDomain, name, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notExistError("domain", name)
	}
	domain, err := store.Get[model.Domain](ctx, tx, store.Key{Kind: store.KindDomain, ID: repoID})
	if err != nil {
		return nil, err
	}
	if !domain.ActiveAt(now) {
		return nil, notExistError("domain", name)
	}
	return domain.ProjectAt(now), nil
}

// loadContactByID loads the active contact for a contact id, projected to now.
func loadContactByID(ctx context.Context, tx store.Tx, id string, now time.Time) (*model.Contact, error) {
	repoID, ok, err := activeRepoID(ctx, tx, store.KindContact, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notExistError("contact", id)
	}
	contact, err := store.Get[model.Contact](ctx, tx, store.Key{Kind: store.KindContact, ID: repoID})
	if err != nil {
		return nil, err
	}
	if !contact.ActiveAt(now) {
		return nil, notExistError("contact", id)
	}
	return contact.ProjectAt(now), nil
}

// saveResource persists a resource snapshot under its repo id.
func saveHost(ctx context.Context, tx store.Tx, h *model.Host) error {
	return store.Put(ctx, tx, store.Key{Kind: store.KindHost, ID: h.RepoID}, h)
}

func saveDomain(ctx context.Context, tx store.Tx, d *model.Domain) error {
	return store.Put(ctx, tx, store.Key{Kind: store.KindDomain, ID: d.RepoID}, d)
}

func saveContact(ctx context.Context, tx store.Tx, c *model.Contact) error {
	return store.Put(ctx, tx, store.Key{Kind: store.KindContact, ID: c.RepoID}, c)
}

// installForeignKey writes a live foreign-key mapping for a resource.
func installForeignKey(ctx context.Context, tx store.Tx, kind store.Kind, foreignKey, repoID string) error {
	key := store.Key{Kind: store.KindForeignKey, ID: store.FKIID(kind, foreignKey)}
	fki := model.ForeignKeyIndex{ForeignKey: foreignKey, RepoID: repoID, DeletionTime: model.EndOfTime}
	return store.Put(ctx, tx, key, &fki)
}

// retireForeignKey marks a foreign-key mapping dead as of now. Must happen
// in the same commit as any new mapping for the key so uniqueness holds
// atomically.
func retireForeignKey(ctx context.Context, tx store.Tx, kind store.Kind, foreignKey string, now time.Time) error {
	key := store.Key{Kind: store.KindForeignKey, ID: store.FKIID(kind, foreignKey)}
	fki, err := store.Get[model.ForeignKeyIndex](ctx, tx, key)
	if err != nil {
		return err
	}
	fki.DeletionTime = now
	return store.Put(ctx, tx, key, fki)
}

// verifyNoDisallowedStatuses rejects the operation when the resource carries
// any of the given statuses. Callers skip this for superusers.
func verifyNoDisallowedStatuses(base *model.ResourceBase, disallowed ...model.StatusValue) error {
	for _, s := range disallowed {
		if base.HasStatus(s) {
			return epperr.Newf(epperr.CodeStatusProhibitsOperation,
				"Operation disallowed by status: %s", s)
		}
	}
	return nil
}

// verifyResourceOwnership rejects commands from registrars that do not
// sponsor the resource. Superuser bypasses this; callers check.
func verifyResourceOwnership(registrar, sponsor string) error {
	if registrar != sponsor {
		return epperr.New(epperr.CodeAuthorizationError,
			"Registrar is not authorized to access this resource")
	}
	return nil
}

// verifyAddRemoveDisjoint enforces that one update cannot add and remove
// the same value.
func verifyAddRemoveDisjoint[T comparable](add, remove []T) error {
	for _, a := range add {
		if slices.Contains(remove, a) {
			return epperr.New(epperr.CodeParameterValuePolicyError,
				"Cannot add and remove the same value")
		}
	}
	return nil
}

// parseStatusValues parses wire statuses and enforces that registrars only
// touch client-settable ones. Superusers may set any status.
func parseStatusValues(elems []epp.StatusElem, superuser bool) ([]model.StatusValue, error) {
	out := make([]model.StatusValue, 0, len(elems))
	for _, e := range elems {
		v, err := model.ParseStatusValue(e.Value)
		if err != nil {
			return nil, epperr.Newf(epperr.CodeParameterValueSyntaxError,
				"Unknown status value %s", e.Value)
		}
		if !superuser && !v.ClientSettable() {
			return nil, epperr.Newf(epperr.CodeParameterValuePolicyError,
				"The status %s cannot be set by clients", v)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseAddrs parses wire glue addresses, checking the declared IP version
// against the parsed address and deduplicating.
func parseAddrs(addrs []epp.HostAddr) ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		ip, err := netip.ParseAddr(a.Address)
		if err != nil {
			return nil, epperr.Newf(epperr.CodeParameterValueSyntaxError,
				"Invalid IP address %s", a.Address)
		}
		switch a.Version {
		case "", "v4", "v6":
			if (a.Version == "v4" && !ip.Is4()) || (a.Version == "v6" && ip.Is4()) {
				return nil, epperr.Newf(epperr.CodeParameterValueRangeError,
					"Declared IP version %q doesn't match the actual IP address %s", a.Version, a.Address)
			}
		default:
			return nil, epperr.Newf(epperr.CodeParameterValueSyntaxError,
				"Unknown IP version %q", a.Version)
		}
		if !slices.Contains(out, ip) {
			out = append(out, ip)
		}
	}
	return out, nil
}

// verifyCheckCount caps the targets of a check command.
func verifyCheckCount(n int) error {
	if n > maxChecks {
		return epperr.Newf(epperr.CodeParameterValuePolicyError,
			"No more than %d resources may be checked at a time", maxChecks)
	}
	return nil
}

// wireStatuses renders a resource's statuses for an info response, showing
// "ok" when nothing else applies.
func wireStatuses(base *model.ResourceBase) []epp.StatusElem {
	if len(base.Statuses) == 0 {
		return []epp.StatusElem{{Value: string(model.StatusOK)}}
	}
	out := make([]epp.StatusElem, 0, len(base.Statuses))
	for _, s := range base.Statuses {
		out = append(out, epp.StatusElem{Value: string(s)})
	}
	return out
}

// wireAddrs renders glue addresses for an info response.
func wireAddrs(addrs []netip.Addr) []epp.HostAddr {
	out := make([]epp.HostAddr, 0, len(addrs))
	for _, a := range addrs {
		version := "v4"
		if a.Is6() && !a.Is4In6() {
			version = "v6"
		}
		out = append(out, epp.HostAddr{Version: version, Address: a.String()})
	}
	return out
}
