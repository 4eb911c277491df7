package model

import "time"

// BillingReason is the chargeable operation behind a billing event.
type BillingReason string

const (
	BillingCreate    BillingReason = "create"
	BillingRenew     BillingReason = "renew"
	BillingTransfer  BillingReason = "transfer"
	BillingAutorenew BillingReason = "autorenew"
)

// BillingEvent is a one-time or recurring charge against a registrar for a
// domain. Recurring events (autorenew) bill yearly until RecurrenceEnd;
// sponsorship changes close the old recurrence and open a new one.
//
// Transfer billing events are staged with Pending=true while the transfer is
// pending and promoted on approval or deleted on rejection/cancellation.
type BillingEvent struct {
	ID           string        `json:"id"`
	Reason       BillingReason `json:"reason"`
	Registrar    string        `json:"registrar"`
	DomainRepoID string        `json:"domain_repo_id"`
	EventTime    time.Time     `json:"event_time"`
	PeriodYears  int           `json:"period_years,omitempty"`
	Pending      bool          `json:"pending,omitempty"`

	Recurring     bool      `json:"recurring,omitempty"`
	RecurrenceEnd time.Time `json:"recurrence_end,omitzero"`
}
