package model

import (
	"net/netip"
	"slices"
	"time"
)

// Host is a nameserver resource. Hosts are "subordinate" (in bailiwick) when
// their name falls under a domain this registry manages, in which case they
// must carry at least one glue address; external hosts must carry none.
//
// The superordinate link is a weak reference by domain name, never an owning
// pointer: both sides' lifetimes are independent and the references are
// cyclic (domain lists the host as a nameserver, host names the domain as
// superordinate).
type Host struct {
	ResourceBase

	Addresses               []netip.Addr `json:"addresses,omitempty"`
	SuperordinateDomain     string       `json:"superordinate_domain,omitempty"`
	LastSuperordinateChange time.Time    `json:"last_superordinate_change,omitzero"`
}

// IsSubordinate reports whether the host sits under a locally managed domain.
func (h *Host) IsSubordinate() bool { return h.SuperordinateDomain != "" }

// ProjectAt computes the host's effective state at now. Hosts have no
// scheduled transitions of their own (they transfer with their superordinate
// domain), so projection returns a plain copy; existence at now is the
// caller's check via ActiveAt.
func (h *Host) ProjectAt(now time.Time) *Host {
	out := *h
	out.ResourceBase = h.cloneBase()
	out.Addresses = slices.Clone(h.Addresses)
	return &out
}

// ComputeLastTransferTime resolves the host's observable last-transfer time
// given its current superordinate domain. A domain transfer carries its
// subordinate hosts with it, but only transfers that happened while the host
// was subordinate to that domain count; the cutoff is the last superordinate
// change, falling back to the host's creation time for hosts that never
// moved.
func (h *Host) ComputeLastTransferTime(superordinate *Domain) time.Time {
	cutoff := h.LastSuperordinateChange
	if cutoff.IsZero() {
		cutoff = h.CreationTime
	}
	domainTransfer := time.Time{}
	if superordinate != nil && superordinate.LastTransferTime.After(cutoff) {
		domainTransfer = superordinate.LastTransferTime
	}
	if domainTransfer.After(h.LastTransferTime) {
		return domainTransfer
	}
	return h.LastTransferTime
}
