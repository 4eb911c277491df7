package model

import "time"

// PostalInfo is the minimal postal block carried on a contact.
type PostalInfo struct {
	Name    string   `json:"name"`
	Org     string   `json:"org,omitempty"`
	Street  []string `json:"street,omitempty"`
	City    string   `json:"city,omitempty"`
	Country string   `json:"country,omitempty"`
}

// Contact is a registrant/admin/tech contact resource. The foreign key is
// the registrar-chosen contact id.
type Contact struct {
	ResourceBase

	PostalInfo PostalInfo   `json:"postal_info,omitzero"`
	Email      string       `json:"email,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	Transfer   TransferData `json:"transfer,omitzero"`
}

// ProjectAt computes the contact's effective state at now, resolving an
// expired pending transfer. Pure; never mutates the persisted form.
func (c *Contact) ProjectAt(now time.Time) *Contact {
	out := *c
	out.ResourceBase = c.cloneBase()
	out.PostalInfo.Street = append([]string(nil), c.PostalInfo.Street...)
	projectTransferAt(&out.ResourceBase, &out.Transfer, now)
	return &out
}
