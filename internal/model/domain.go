package model

import (
	"slices"
	"time"
)

// MaxNameservers is the protocol cap on nameserver references per domain.
const MaxNameservers = 13

// MaxRegistrationYears caps how far into the future a registration may
// extend, measured from the moment of the operation that extends it.
const MaxRegistrationYears = 10

// DesignatedContactType distinguishes the non-registrant contact roles.
type DesignatedContactType string

const (
	ContactAdmin DesignatedContactType = "admin"
	ContactTech  DesignatedContactType = "tech"
)

// DesignatedContact is a weak reference to a contact resource in a role.
type DesignatedContact struct {
	Type      DesignatedContactType `json:"type"`
	ContactID string                `json:"contact_id"`
}

// Domain is a second-level domain registration.
type Domain struct {
	ResourceBase

	TLD                    string              `json:"tld"`
	Registrant             string              `json:"registrant"`
	Contacts               []DesignatedContact `json:"contacts,omitempty"`
	Nameservers            []string            `json:"nameservers,omitempty"`
	SubordinateHosts       []string            `json:"subordinate_hosts,omitempty"`
	Transfer               TransferData        `json:"transfer,omitzero"`
	RegistrationExpiration time.Time           `json:"registration_expiration"`

	// Autorenew side-effect entities, rewritten when sponsorship changes.
	AutorenewBillingEventID string `json:"autorenew_billing_event_id,omitempty"`
	AutorenewPollMessageID  string `json:"autorenew_poll_message_id,omitempty"`
}

func (d *Domain) clone() *Domain {
	out := *d
	out.ResourceBase = d.cloneBase()
	out.Contacts = slices.Clone(d.Contacts)
	out.Nameservers = slices.Clone(d.Nameservers)
	out.SubordinateHosts = slices.Clone(d.SubordinateHosts)
	return &out
}

// HasSubordinateHost reports whether name is in the domain's subordinate set.
func (d *Domain) HasSubordinateHost(name string) bool {
	return slices.Contains(d.SubordinateHosts, name)
}

// AddSubordinateHost records a subordinate hostname, keeping the set sorted.
func (d *Domain) AddSubordinateHost(name string) {
	if d.HasSubordinateHost(name) {
		return
	}
	d.SubordinateHosts = append(d.SubordinateHosts, name)
	slices.Sort(d.SubordinateHosts)
}

// RemoveSubordinateHost drops a subordinate hostname if present.
func (d *Domain) RemoveSubordinateHost(name string) {
	d.SubordinateHosts = slices.DeleteFunc(slices.Clone(d.SubordinateHosts), func(v string) bool {
		return v == name
	})
}

// ProjectAt computes the domain's effective state at now, resolving scheduled
// transitions whose time has passed. Pure: the persisted form is never
// touched, and repeated calls yield identical results.
//
// The implicit server approval handled here closely parallels the explicit
// approval in the domain transfer-approve flow; the two must stay in step.
func (d *Domain) ProjectAt(now time.Time) *Domain {
	// An expired pending transfer resolves first. Project to just before the
	// transfer instant so any autorenew that fell due during the pending
	// window is applied under the losing registrar, then apply the transfer,
	// then continue projecting to now.
	if d.Transfer.IsPending() && !d.Transfer.PendingExpirationTime.After(now) {
		transferTime := d.Transfer.PendingExpirationTime
		atTransfer := d.ProjectAt(transferTime.Add(-time.Millisecond))
		atTransfer.RegistrationExpiration = ExtendRegistrationWithCap(
			transferTime, atTransfer.RegistrationExpiration, 1)
		// The staged autorenew recurrence becomes the domain's live one: the
		// losing sponsor's recurrence was already closed at the transfer
		// time when the request was committed.
		if id := atTransfer.Transfer.ServerApproveAutorenewBillingID; id != "" {
			atTransfer.AutorenewBillingEventID = id
			atTransfer.AutorenewPollMessageID = atTransfer.Transfer.ServerApproveAutorenewPollID
		}
		projectTransferAt(&atTransfer.ResourceBase, &atTransfer.Transfer, now)
		return atTransfer.ProjectAt(now)
	}

	out := d.clone()
	if !out.RegistrationExpiration.After(now) {
		// Autorenew in whole years until the expiration clears now. The
		// autorenew billing recurrence and poll message already exist; only
		// the projected expiration moves.
		years := wholeYearsBetween(out.RegistrationExpiration, now) + 1
		out.RegistrationExpiration = out.RegistrationExpiration.AddDate(years, 0, 0)
	}
	return out
}

// ExtendRegistrationWithCap returns the expiration time after adding the
// given number of years, capped at MaxRegistrationYears from now. The cap may
// truncate a partial year.
func ExtendRegistrationWithCap(now, currentExpiration time.Time, years int) time.Time {
	extended := currentExpiration.AddDate(years, 0, 0)
	cap := now.AddDate(MaxRegistrationYears, 0, 0)
	if extended.After(cap) {
		return cap
	}
	return extended
}

// wholeYearsBetween counts complete years from start to end (end after
// start), leap-safe by construction since AddDate handles Feb 29 clamping.
func wholeYearsBetween(start, end time.Time) int {
	years := 0
	for !start.AddDate(years+1, 0, 0).After(end) {
		years++
	}
	return years
}
