package model

import "time"

// TransferStatus is the state of a resource's transfer state machine.
type TransferStatus string

const (
	TransferNone            TransferStatus = ""
	TransferPending         TransferStatus = "pending"
	TransferClientApproved  TransferStatus = "clientApproved"
	TransferClientCancelled TransferStatus = "clientCancelled"
	TransferClientRejected  TransferStatus = "clientRejected"
	TransferServerApproved  TransferStatus = "serverApproved"
	TransferServerCancelled TransferStatus = "serverCancelled"
	TransferServerRejected  TransferStatus = "serverRejected"
)

// TransferData is the embedded transfer state machine for domains and
// contacts. While a transfer is pending the server-approve side-effect
// entities (billing event, poll messages) are already persisted but gated on
// approval; their ids are carried here so approval, rejection, or implicit
// server approval can promote or cancel them.
type TransferData struct {
	Status                TransferStatus `json:"status,omitempty"`
	GainingRegistrar      string         `json:"gaining_registrar,omitempty"`
	LosingRegistrar       string         `json:"losing_registrar,omitempty"`
	RequestTime           time.Time      `json:"request_time,omitzero"`
	PendingExpirationTime time.Time      `json:"pending_expiration_time,omitzero"`

	ServerApproveBillingEventID string `json:"server_approve_billing_event_id,omitempty"`
	ServerApproveGainingPollID  string `json:"server_approve_gaining_poll_id,omitempty"`
	ServerApproveLosingPollID   string `json:"server_approve_losing_poll_id,omitempty"`

	// The gaining registrar's autorenew recurrence, staged at request time so
	// implicit server approval needs no further writes. The losing sponsor's
	// recurrence is closed at the pending expiration time in the same commit
	// and reopened if the transfer resolves against the gaining registrar.
	ServerApproveAutorenewBillingID string `json:"server_approve_autorenew_billing_id,omitempty"`
	ServerApproveAutorenewPollID    string `json:"server_approve_autorenew_poll_id,omitempty"`
}

// IsPending reports whether a transfer request is awaiting resolution.
func (td *TransferData) IsPending() bool { return td.Status == TransferPending }

// ClearServerApproveRefs drops the staged entity references once the pending
// state resolves; the entities themselves are promoted or deleted by the
// resolving flow.
func (td *TransferData) ClearServerApproveRefs() {
	td.ServerApproveBillingEventID = ""
	td.ServerApproveGainingPollID = ""
	td.ServerApproveLosingPollID = ""
	td.ServerApproveAutorenewBillingID = ""
	td.ServerApproveAutorenewPollID = ""
}

// projectTransferAt resolves an expired pending transfer onto the resource
// base: past the pending expiration time the gaining registrar is the
// observable sponsor even though no explicit approval flow has run. Pure with
// respect to the persisted form; operates on cloned state only.
func projectTransferAt(base *ResourceBase, td *TransferData, now time.Time) {
	if !td.IsPending() || td.PendingExpirationTime.After(now) {
		return
	}
	base.RemoveStatus(StatusPendingTransfer)
	base.SponsorRegistrar = td.GainingRegistrar
	base.LastTransferTime = td.PendingExpirationTime
	td.Status = TransferServerApproved
	td.ClearServerApproveRefs()
}
