// Package model holds the persisted forms of registry resources and the pure
// temporal-projection logic that derives their effective state at a point in
// time.
//
// Resources are immutable value records: mutating flows build a whole new
// version rather than editing in place, and the old version survives only as
// the read snapshot used for the store's concurrency check.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// EndOfTime is the sentinel deletion time for resources that have never been
// deleted. Far enough out to sort after any real timestamp, near enough to
// survive every timestamp encoding we use.
var EndOfTime = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// StatusValue is an EPP status tag on a resource.
type StatusValue string

const (
	StatusOK              StatusValue = "ok"
	StatusInactive        StatusValue = "inactive"
	StatusLinked          StatusValue = "linked"
	StatusPendingCreate   StatusValue = "pendingCreate"
	StatusPendingDelete   StatusValue = "pendingDelete"
	StatusPendingTransfer StatusValue = "pendingTransfer"

	StatusClientDeleteProhibited   StatusValue = "clientDeleteProhibited"
	StatusClientHold               StatusValue = "clientHold"
	StatusClientRenewProhibited    StatusValue = "clientRenewProhibited"
	StatusClientTransferProhibited StatusValue = "clientTransferProhibited"
	StatusClientUpdateProhibited   StatusValue = "clientUpdateProhibited"

	StatusServerDeleteProhibited   StatusValue = "serverDeleteProhibited"
	StatusServerHold               StatusValue = "serverHold"
	StatusServerRenewProhibited    StatusValue = "serverRenewProhibited"
	StatusServerTransferProhibited StatusValue = "serverTransferProhibited"
	StatusServerUpdateProhibited   StatusValue = "serverUpdateProhibited"
)

// ClientSettable reports whether a registrar may add or remove this status
// through an update command. Server statuses and pending markers are managed
// by the registry only.
func (s StatusValue) ClientSettable() bool {
	switch s {
	case StatusClientDeleteProhibited,
		StatusClientHold,
		StatusClientRenewProhibited,
		StatusClientTransferProhibited,
		StatusClientUpdateProhibited:
		return true
	}
	return false
}

// ParseStatusValue maps the wire form of a status onto its enum value.
func ParseStatusValue(s string) (StatusValue, error) {
	v := StatusValue(s)
	switch v {
	case StatusOK, StatusInactive, StatusLinked,
		StatusPendingCreate, StatusPendingDelete, StatusPendingTransfer,
		StatusClientDeleteProhibited, StatusClientHold, StatusClientRenewProhibited,
		StatusClientTransferProhibited, StatusClientUpdateProhibited,
		StatusServerDeleteProhibited, StatusServerHold, StatusServerRenewProhibited,
		StatusServerTransferProhibited, StatusServerUpdateProhibited:
		return v, nil
	}
	return "", fmt.Errorf("unknown status value %q", s)
}

// ResourceBase carries the fields shared by domains, hosts, and contacts.
//
// Invariants:
//   - RepoID is immutable and globally unique (HEX-SUFFIX form)
//   - ForeignKey maps to at most one active resource at any instant; the
//     foreign-key index entity enforces this across renames and deletions
//   - CreationTime <= any observable timestamp < DeletionTime while active
type ResourceBase struct {
	RepoID              string        `json:"repo_id"`
	ForeignKey          string        `json:"foreign_key"`
	CreationTime        time.Time     `json:"creation_time"`
	DeletionTime        time.Time     `json:"deletion_time"`
	CreationRegistrar   string        `json:"creation_registrar"`
	SponsorRegistrar    string        `json:"sponsor_registrar"`
	LastUpdateTime      time.Time     `json:"last_update_time,omitzero"`
	LastUpdateRegistrar string        `json:"last_update_registrar,omitempty"`
	LastTransferTime    time.Time     `json:"last_transfer_time,omitzero"`
	Statuses            []StatusValue `json:"statuses,omitempty"`
}

// ActiveAt reports whether the resource exists at t: alive from creation
// time, inclusive, through deletion time, exclusive.
func (r *ResourceBase) ActiveAt(t time.Time) bool {
	return !t.Before(r.CreationTime) && t.Before(r.DeletionTime)
}

// HasStatus reports whether the resource carries the given status.
func (r *ResourceBase) HasStatus(s StatusValue) bool {
	return slices.Contains(r.Statuses, s)
}

// AddStatus returns with the status present, keeping the set sorted so that
// versions compare deterministically.
func (r *ResourceBase) AddStatus(s StatusValue) {
	if r.HasStatus(s) {
		return
	}
	r.Statuses = append(r.Statuses, s)
	slices.Sort(r.Statuses)
}

// RemoveStatus drops the status if present.
func (r *ResourceBase) RemoveStatus(s StatusValue) {
	r.Statuses = slices.DeleteFunc(slices.Clone(r.Statuses), func(v StatusValue) bool {
		return v == s
	})
}

// cloneBase deep-copies the base so projections never alias the persisted
// form's slices.
func (r *ResourceBase) cloneBase() ResourceBase {
	out := *r
	out.Statuses = slices.Clone(r.Statuses)
	return out
}

// NewRepoID formats a repository id in the HEX-SUFFIX form from an allocated
// numeric id and a TLD's ROID suffix.
func NewRepoID(id uint64, roidSuffix string) string {
	return fmt.Sprintf("%X-%s", id, strings.ToUpper(roidSuffix))
}
