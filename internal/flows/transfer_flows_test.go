package flows_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registryd/internal/epp"
	"registryd/internal/model"
	"registryd/internal/store"
	"registryd/pkg/epperr"
)

func domainTransferCmd(verb epp.Verb, name string) *epp.Command {
	return &epp.Command{
		Verb:           verb,
		Kind:           epp.KindDomain,
		DomainTransfer: &epp.DomainTransfer{Name: name},
	}
}

func TestDomainTransferRequest(t *testing.T) {
	e := newEnv(t)
	e.seedDomain("example.test", "1-TEST", "TheRegistrar")

	resp := e.run("NewRegistrar", domainTransferCmd(epp.VerbTransferRequest, "example.test"))
	require.Equal(t, epperr.CodeSuccessActionPending, resp.Code)

	pendingEnd := testTime.Add(5 * 24 * time.Hour)
	data, ok := resp.ResData.(*epp.DomainTransferData)
	require.True(t, ok)
	assert.Equal(t, "example.test", data.Name)
	assert.Equal(t, "pending", data.TransferStatus)
	assert.Equal(t, "NewRegistrar", data.GainingID)
	assert.Equal(t, "TheRegistrar", data.LosingID)
	assert.Equal(t, epp.Time(testTime), data.RequestDate)
	assert.Equal(t, epp.Time(pendingEnd), data.ActionDate)
	require.NotNil(t, data.ExpirationDate)
	assert.Equal(t, epp.Time(testTime.AddDate(2, 0, 0)), *data.ExpirationDate)

	domain := e.readDomain("1-TEST")
	assert.True(t, domain.HasStatus(model.StatusPendingTransfer))
	td := domain.Transfer
	assert.Equal(t, model.TransferPending, td.Status)
	assert.Equal(t, "NewRegistrar", td.GainingRegistrar)
	assert.Equal(t, "TheRegistrar", td.LosingRegistrar)
	assert.Equal(t, testTime, td.RequestTime)
	assert.Equal(t, pendingEnd, td.PendingExpirationTime)
	assert.NotEmpty(t, td.ServerApproveBillingEventID)
	assert.NotEmpty(t, td.ServerApproveAutorenewBillingID)
	// The sponsoring registrar keeps the registration on projection; the
	// response's expiration date only anticipates approval.
	assert.Equal(t, testTime.AddDate(1, 0, 0), domain.RegistrationExpiration)

	billing := e.billingEventsFor("1-TEST")
	require.Len(t, billing, 2)
	byReason := map[model.BillingReason]model.BillingEvent{}
	for _, ev := range billing {
		byReason[ev.Reason] = ev
	}
	transfer := byReason[model.BillingTransfer]
	assert.True(t, transfer.Pending)
	assert.Equal(t, pendingEnd, transfer.EventTime)
	autorenew := byReason[model.BillingAutorenew]
	assert.Equal(t, td.ServerApproveAutorenewBillingID, autorenew.ID)
	assert.Equal(t, "NewRegistrar", autorenew.Registrar)
	assert.True(t, autorenew.Recurring)
	assert.Equal(t, model.EndOfTime, autorenew.RecurrenceEnd)
	assert.Equal(t, testTime.AddDate(2, 0, 0), autorenew.EventTime)

	losing := e.pollMessagesFor("TheRegistrar")
	require.Len(t, losing, 2)
	byMessage := map[string]model.PollMessage{}
	for _, msg := range losing {
		byMessage[msg.Message] = msg
	}
	assert.False(t, byMessage["Transfer requested."].Pending)
	assert.True(t, byMessage["Transfer approved."].Pending)

	gaining := e.pollMessagesFor("NewRegistrar")
	require.Len(t, gaining, 2)
	gainingByMessage := map[string]model.PollMessage{}
	for _, msg := range gaining {
		gainingByMessage[msg.Message] = msg
	}
	assert.True(t, gainingByMessage["Transfer approved."].Pending)
	assert.True(t, gainingByMessage["Domain was auto-renewed."].Autorenew)

	entries := e.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, model.HistoryDomainTransferRequest, entries[0].Type)
}

func TestDomainTransferRequestFailures(t *testing.T) {
	e := newEnv(t)
	e.seedDomain("example.test", "1-TEST", "TheRegistrar")
	e.seedDomain("moving.test", "2-TEST", "TheRegistrar")
	resp := e.run("NewRegistrar", domainTransferCmd(epp.VerbTransferRequest, "moving.test"))
	require.Equal(t, epperr.CodeSuccessActionPending, resp.Code)

	locked := e.seedDomain("locked.test", "3-TEST", "TheRegistrar")
	locked.AddStatus(model.StatusClientTransferProhibited)
	e.put(store.Key{Kind: store.KindDomain, ID: locked.RepoID}, locked)

	tooLong := domainTransferCmd(epp.VerbTransferRequest, "example.test")
	tooLong.DomainTransfer.Period = &epp.Period{Unit: "y", Value: 2}

	tests := []struct {
		name      string
		registrar string
		cmd       *epp.Command
		code      epperr.Code
		message   string
	}{
		{
			name:      "already the sponsor",
			registrar: "TheRegistrar",
			cmd:       domainTransferCmd(epp.VerbTransferRequest, "example.test"),
			code:      epperr.CodeNotEligibleForTransfer,
			message:   "Registrar already sponsors the object of this transfer request",
		},
		{
			name:      "already pending",
			registrar: "NewRegistrar",
			cmd:       domainTransferCmd(epp.VerbTransferRequest, "moving.test"),
			code:      epperr.CodeObjectPendingTransfer,
			message:   "Object with given ID (moving.test) already has a pending transfer",
		},
		{
			name:      "period other than one year",
			registrar: "NewRegistrar",
			cmd:       tooLong,
			code:      epperr.CodeParameterValuePolicyError,
			message:   "Transfers always renew a domain for one year",
		},
		{
			name:      "transfer prohibited",
			registrar: "NewRegistrar",
			cmd:       domainTransferCmd(epp.VerbTransferRequest, "locked.test"),
			code:      epperr.CodeStatusProhibitsOperation,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := e.run(tc.registrar, tc.cmd)
			assert.Equal(t, tc.code, resp.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, resp.Message)
			}
		})
	}
}

func TestDomainTransferApprove(t *testing.T) {
	e := newEnv(t)
	e.seedDomain("example.test", "1-TEST", "TheRegistrar")
	resp := e.run("NewRegistrar", domainTransferCmd(epp.VerbTransferRequest, "example.test"))
	require.Equal(t, epperr.CodeSuccessActionPending, resp.Code)

	approveTime := testTime.AddDate(0, 0, 1)
	resp = e.runAt("TheRegistrar", approveTime, domainTransferCmd(epp.VerbTransferApprove, "example.test"))
	require.Equal(t, epperr.CodeSuccess, resp.Code)

	data, ok := resp.ResData.(*epp.DomainTransferData)
	require.True(t, ok)
	assert.Equal(t, "clientApproved", data.TransferStatus)

	domain := e.readDomain("1-TEST")
	assert.Equal(t, "NewRegistrar", domain.SponsorRegistrar)
	assert.Equal(t, approveTime, domain.LastTransferTime)
	assert.False(t, domain.HasStatus(model.StatusPendingTransfer))
	assert.Equal(t, testTime.AddDate(2, 0, 0), domain.RegistrationExpiration)
	assert.Equal(t, model.TransferClientApproved, domain.Transfer.Status)
	assert.Empty(t, domain.Transfer.ServerApproveBillingEventID)
	assert.NotEmpty(t, domain.AutorenewBillingEventID, "gaining registrar gets a fresh recurrence")

	events := e.billingEventsFor("1-TEST")
	require.Len(t, events, 2, "staged autorenew gives way to the fresh recurrence")
	byReason := map[model.BillingReason]model.BillingEvent{}
	for _, ev := range events {
		byReason[ev.Reason] = ev
	}
	transfer := byReason[model.BillingTransfer]
	assert.False(t, transfer.Pending, "staged billing promoted on approval")
	assert.Equal(t, approveTime, transfer.EventTime)
	assert.Equal(t, "NewRegistrar", byReason[model.BillingAutorenew].Registrar)

	var approved *model.PollMessage
	for _, msg := range e.pollMessagesFor("NewRegistrar") {
		if msg.Message == "Transfer approved." {
			approved = &msg
		}
	}
	require.NotNil(t, approved)
	assert.False(t, approved.Pending)
	assert.Equal(t, approveTime, approved.EventTime)

	for _, msg := range e.pollMessagesFor("TheRegistrar") {
		assert.NotEqual(t, "Transfer approved.", msg.Message,
			"the approver needs no staged notice")
	}
}

func TestDomainTransferReject(t *testing.T) {
	e := newEnv(t)
	e.seedDomain("example.test", "1-TEST", "TheRegistrar")
	resp := e.run("NewRegistrar", domainTransferCmd(epp.VerbTransferRequest, "example.test"))
	require.Equal(t, epperr.CodeSuccessActionPending, resp.Code)

	resp = e.run("TheRegistrar", domainTransferCmd(epp.VerbTransferReject, "example.test"))
	require.Equal(t, epperr.CodeSuccess, resp.Code)

	domain := e.readDomain("1-TEST")
	assert.Equal(t, model.TransferClientRejected, domain.Transfer.Status)
	assert.False(t, domain.HasStatus(model.StatusPendingTransfer))
	assert.Equal(t, "TheRegistrar", domain.SponsorRegistrar)
	assert.Equal(t, testTime.AddDate(1, 0, 0), domain.RegistrationExpiration)
	assert.Empty(t, e.billingEventsFor("1-TEST"), "staged transfer billing is dropped")

	var messages []string
	for _, msg := range e.pollMessagesFor("NewRegistrar") {
		messages = append(messages, msg.Message)
	}
	assert.Equal(t, []string{"Transfer rejected."}, messages)
}

func TestDomainTransferCancel(t *testing.T) {
	e := newEnv(t)
	e.seedDomain("example.test", "1-TEST", "TheRegistrar")
	resp := e.run("NewRegistrar", domainTransferCmd(epp.VerbTransferRequest, "example.test"))
	require.Equal(t, epperr.CodeSuccessActionPending, resp.Code)

	resp = e.run("TheRegistrar", domainTransferCmd(epp.VerbTransferCancel, "example.test"))
	require.Equal(t, epperr.CodeAuthorizationError, resp.Code)
	assert.Equal(t, "Registrar is not the initiator of this transfer", resp.Message)

	resp = e.run("NewRegistrar", domainTransferCmd(epp.VerbTransferCancel, "example.test"))
	require.Equal(t, epperr.CodeSuccess, resp.Code)

	domain := e.readDomain("1-TEST")
	assert.Equal(t, model.TransferClientCancelled, domain.Transfer.Status)
	assert.False(t, domain.HasStatus(model.StatusPendingTransfer))

	var messages []string
	for _, msg := range e.pollMessagesFor("TheRegistrar") {
		messages = append(messages, msg.Message)
	}
	assert.Contains(t, messages, "Transfer cancelled.")
}

func TestDomainTransferApproveNonePending(t *testing.T) {
	e := newEnv(t)
	e.seedDomain("example.test", "1-TEST", "TheRegistrar")

	resp := e.run("TheRegistrar", domainTransferCmd(epp.VerbTransferApprove, "example.test"))
	require.Equal(t, epperr.CodeObjectNotPendingTransfer, resp.Code)
	assert.Equal(t, "Object with given ID (example.test) does not have a pending transfer", resp.Message)
}

// After the pending period lapses without an explicit answer the transfer
// reads as server approved everywhere, without any further write.
func TestDomainTransferImplicitServerApproval(t *testing.T) {
	e := newEnv(t)
	e.seedDomain("example.test", "1-TEST", "TheRegistrar")
	resp := e.run("NewRegistrar", domainTransferCmd(epp.VerbTransferRequest, "example.test"))
	require.Equal(t, epperr.CodeSuccessActionPending, resp.Code)

	afterPending := testTime.AddDate(0, 0, 6)
	resp = e.runAt("NewRegistrar", afterPending, &epp.Command{
		Verb:       epp.VerbInfo,
		Kind:       epp.KindDomain,
		DomainInfo: &epp.DomainInfo{Name: "example.test"},
	})
	require.Equal(t, epperr.CodeSuccess, resp.Code)

	data, ok := resp.ResData.(*epp.DomainInfoData)
	require.True(t, ok)
	assert.Equal(t, "NewRegistrar", data.SponsorRegistrar)
	assert.Equal(t, epp.Time(testTime.AddDate(2, 0, 0)), data.ExpirationDate)
	for _, s := range data.Statuses {
		assert.NotEqual(t, string(model.StatusPendingTransfer), s.Value)
	}

	// The stored row still says pending; only projection resolved it.
	assert.Equal(t, model.TransferPending, e.readDomain("1-TEST").Transfer.Status)

	resp = e.runAt("TheRegistrar", afterPending, domainTransferCmd(epp.VerbTransferApprove, "example.test"))
	require.Equal(t, epperr.CodeObjectNotPendingTransfer, resp.Code)
}

// Implicit server approval hands the autorenew recurrence over without any
// further write: the losing sponsor's recurrence was closed at the automatic
// transfer time when the request committed, and projection switches the
// domain onto the staged replacement.
func TestDomainTransferImplicitApprovalMovesAutorenew(t *testing.T) {
	e := newEnv(t)
	seedCreateContacts(e)
	resp := e.run("TheRegistrar", domainCreateCmd("example.test"))
	require.Equal(t, epperr.CodeSuccess, resp.Code)
	repoID := e.resolveRepoID(store.KindDomain, "example.test")
	created := e.readDomain(repoID)
	losingBillingID := created.AutorenewBillingEventID
	losingPollID := created.AutorenewPollMessageID
	require.NotEmpty(t, losingBillingID)

	resp = e.run("NewRegistrar", domainTransferCmd(epp.VerbTransferRequest, "example.test"))
	require.Equal(t, epperr.CodeSuccessActionPending, resp.Code)

	pendingEnd := testTime.Add(5 * 24 * time.Hour)
	byID := map[string]model.BillingEvent{}
	for _, ev := range e.billingEventsFor(repoID) {
		byID[ev.ID] = ev
	}
	losing, ok := byID[losingBillingID]
	require.True(t, ok)
	assert.Equal(t, pendingEnd, losing.RecurrenceEnd,
		"losing recurrence ends at the automatic transfer time")

	td := e.readDomain(repoID).Transfer
	require.NotEmpty(t, td.ServerApproveAutorenewBillingID)
	staged, ok := byID[td.ServerApproveAutorenewBillingID]
	require.True(t, ok)
	assert.Equal(t, "NewRegistrar", staged.Registrar)
	assert.True(t, staged.Recurring)
	assert.Equal(t, model.EndOfTime, staged.RecurrenceEnd)

	for _, msg := range e.pollMessagesFor("TheRegistrar") {
		if msg.ID == losingPollID {
			assert.Equal(t, pendingEnd, msg.RecurrenceEnd)
		}
	}

	afterPending := testTime.AddDate(0, 0, 6)
	projected := e.readDomain(repoID).ProjectAt(afterPending)
	assert.Equal(t, "NewRegistrar", projected.SponsorRegistrar)
	assert.Equal(t, td.ServerApproveAutorenewBillingID, projected.AutorenewBillingEventID)
	assert.Equal(t, td.ServerApproveAutorenewPollID, projected.AutorenewPollMessageID)
	assert.NotEqual(t, losingBillingID, projected.AutorenewBillingEventID)
}
