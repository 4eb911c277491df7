package model

import "time"

// PollMessage is a queued notification for a registrar. One-time messages
// report transfer outcomes and async deletion results; autorenew messages
// recur yearly until RecurrenceEnd.
//
// Pending-transfer poll messages are staged with Pending=true and promoted
// (or deleted) when the transfer resolves; a pending message is invisible to
// poll-request flows.
type PollMessage struct {
	ID             string    `json:"id"`
	Registrar      string    `json:"registrar"`
	EventTime      time.Time `json:"event_time"`
	Message        string    `json:"message"`
	ResourceRepoID string    `json:"resource_repo_id,omitempty"`
	Pending        bool      `json:"pending,omitempty"`

	Autorenew     bool      `json:"autorenew,omitempty"`
	RecurrenceEnd time.Time `json:"recurrence_end,omitzero"`
}
