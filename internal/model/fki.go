package model

import "time"

// ForeignKeyIndex maps a resource's human-readable foreign key (hostname,
// domain name, contact id) to the repo id of the resource that owns it.
//
// The index is the uniqueness authority for foreign keys: at most one active
// resource per foreign key at any instant. A rename or deletion retires the
// old mapping (by setting its deletion time) in the same commit that
// installs any new one, so the invariant holds atomically.
type ForeignKeyIndex struct {
	ForeignKey   string    `json:"foreign_key"`
	RepoID       string    `json:"repo_id"`
	DeletionTime time.Time `json:"deletion_time"`
}

// ActiveAt reports whether the mapping is live at t.
func (f *ForeignKeyIndex) ActiveAt(t time.Time) bool {
	return t.Before(f.DeletionTime)
}
