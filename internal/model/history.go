package model

import "time"

// HistoryType identifies the mutating flow that produced a history entry.
type HistoryType string

const (
	HistoryHostCreate        HistoryType = "HOST_CREATE"
	HistoryHostUpdate        HistoryType = "HOST_UPDATE"
	HistoryHostPendingDelete HistoryType = "HOST_PENDING_DELETE"
	HistoryHostDelete        HistoryType = "HOST_DELETE"
	HistoryHostDeleteFailure HistoryType = "HOST_DELETE_FAILURE"

	HistoryDomainCreate          HistoryType = "DOMAIN_CREATE"
	HistoryDomainUpdate          HistoryType = "DOMAIN_UPDATE"
	HistoryDomainDelete          HistoryType = "DOMAIN_DELETE"
	HistoryDomainRenew           HistoryType = "DOMAIN_RENEW"
	HistoryDomainTransferRequest HistoryType = "DOMAIN_TRANSFER_REQUEST"
	HistoryDomainTransferApprove HistoryType = "DOMAIN_TRANSFER_APPROVE"
	HistoryDomainTransferReject  HistoryType = "DOMAIN_TRANSFER_REJECT"
	HistoryDomainTransferCancel  HistoryType = "DOMAIN_TRANSFER_CANCEL"

	HistoryContactCreate        HistoryType = "CONTACT_CREATE"
	HistoryContactUpdate        HistoryType = "CONTACT_UPDATE"
	HistoryContactPendingDelete HistoryType = "CONTACT_PENDING_DELETE"
	HistoryContactDelete        HistoryType = "CONTACT_DELETE"
	HistoryContactDeleteFailure HistoryType = "CONTACT_DELETE_FAILURE"
)

// HistoryEntry is the immutable audit record written once per mutating flow
// execution, parented by the resource it mutated. RawRequest optionally
// carries the protocol request for replay and audit; it is stored, never
// served back to registrars.
type HistoryEntry struct {
	ID             string      `json:"id"`
	ResourceRepoID string      `json:"resource_repo_id"`
	Type           HistoryType `json:"type"`
	Registrar      string      `json:"registrar"`
	Time           time.Time   `json:"time"`
	ClientTrid     string      `json:"client_trid,omitempty"`
	ServerTrid     string      `json:"server_trid,omitempty"`
	Superuser      bool        `json:"superuser,omitempty"`
	RawRequest     []byte      `json:"raw_request,omitempty"`
}
