package epp

import (
	"encoding/xml"
	"slices"

	"registryd/pkg/epperr"
)

// envelope mirrors the <epp><command> structure for decoding. Each verb
// element holds the object-mapping payloads that may appear inside it; the
// namespace on the inner element selects the resource kind.
type envelope struct {
	XMLName xml.Name     `xml:"urn:ietf:params:xml:ns:epp-1.0 epp"`
	Command *commandElem `xml:"command"`
}

type commandElem struct {
	Login  *Login    `xml:"login"`
	Logout *struct{} `xml:"logout"`

	Create *struct {
		Host    *HostCreate    `xml:"urn:ietf:params:xml:ns:host-1.0 create"`
		Domain  *DomainCreate  `xml:"urn:ietf:params:xml:ns:domain-1.0 create"`
		Contact *ContactCreate `xml:"urn:ietf:params:xml:ns:contact-1.0 create"`
	} `xml:"create"`
	Update *struct {
		Host    *HostUpdate    `xml:"urn:ietf:params:xml:ns:host-1.0 update"`
		Domain  *DomainUpdate  `xml:"urn:ietf:params:xml:ns:domain-1.0 update"`
		Contact *ContactUpdate `xml:"urn:ietf:params:xml:ns:contact-1.0 update"`
	} `xml:"update"`
	Delete *struct {
		Host    *HostDelete    `xml:"urn:ietf:params:xml:ns:host-1.0 delete"`
		Domain  *DomainDelete  `xml:"urn:ietf:params:xml:ns:domain-1.0 delete"`
		Contact *ContactDelete `xml:"urn:ietf:params:xml:ns:contact-1.0 delete"`
	} `xml:"delete"`
	Renew *struct {
		Domain *DomainRenew `xml:"urn:ietf:params:xml:ns:domain-1.0 renew"`
	} `xml:"renew"`
	Info *struct {
		Host    *HostInfo    `xml:"urn:ietf:params:xml:ns:host-1.0 info"`
		Domain  *DomainInfo  `xml:"urn:ietf:params:xml:ns:domain-1.0 info"`
		Contact *ContactInfo `xml:"urn:ietf:params:xml:ns:contact-1.0 info"`
	} `xml:"info"`
	Check *struct {
		Host    *HostCheck    `xml:"urn:ietf:params:xml:ns:host-1.0 check"`
		Domain  *DomainCheck  `xml:"urn:ietf:params:xml:ns:domain-1.0 check"`
		Contact *ContactCheck `xml:"urn:ietf:params:xml:ns:contact-1.0 check"`
	} `xml:"check"`
	Transfer *struct {
		Op     string          `xml:"op,attr"`
		Domain *DomainTransfer `xml:"urn:ietf:params:xml:ns:domain-1.0 transfer"`
	} `xml:"transfer"`

	ClTRID string `xml:"clTRID"`
}

var transferOps = map[string]Verb{
	"request": VerbTransferRequest,
	"approve": VerbTransferApprove,
	"reject":  VerbTransferReject,
	"cancel":  VerbTransferCancel,
}

// Decode parses a request document into a normalized Command. Failures are
// coded syntax errors; nothing semantic is checked here.
func Decode(raw []byte) (*Command, error) {
	var env envelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, epperr.Wrap(err, epperr.CodeSyntaxError, "Command syntax error")
	}
	if env.Command == nil {
		return nil, epperr.New(epperr.CodeUnknownCommand, "Unknown command")
	}
	cmd := &Command{ClTRID: env.Command.ClTRID, Raw: slices.Clone(raw)}
	c := env.Command

	switch {
	case c.Login != nil:
		cmd.Verb, cmd.Login = VerbLogin, c.Login
	case c.Logout != nil:
		cmd.Verb = VerbLogout
	case c.Create != nil:
		cmd.Verb = VerbCreate
		cmd.HostCreate, cmd.DomainCreate, cmd.ContactCreate = c.Create.Host, c.Create.Domain, c.Create.Contact
	case c.Update != nil:
		cmd.Verb = VerbUpdate
		cmd.HostUpdate, cmd.DomainUpdate, cmd.ContactUpdate = c.Update.Host, c.Update.Domain, c.Update.Contact
	case c.Delete != nil:
		cmd.Verb = VerbDelete
		cmd.HostDelete, cmd.DomainDelete, cmd.ContactDelete = c.Delete.Host, c.Delete.Domain, c.Delete.Contact
	case c.Renew != nil:
		cmd.Verb = VerbRenew
		cmd.DomainRenew = c.Renew.Domain
	case c.Info != nil:
		cmd.Verb = VerbInfo
		cmd.HostInfo, cmd.DomainInfo, cmd.ContactInfo = c.Info.Host, c.Info.Domain, c.Info.Contact
	case c.Check != nil:
		cmd.Verb = VerbCheck
		cmd.HostCheck, cmd.DomainCheck, cmd.ContactCheck = c.Check.Host, c.Check.Domain, c.Check.Contact
	case c.Transfer != nil:
		verb, ok := transferOps[c.Transfer.Op]
		if !ok {
			return nil, epperr.Newf(epperr.CodeParameterValueSyntaxError,
				"Unknown transfer op %q", c.Transfer.Op)
		}
		cmd.Verb = verb
		cmd.DomainTransfer = c.Transfer.Domain
	default:
		return nil, epperr.New(epperr.CodeUnknownCommand, "Unknown command")
	}

	cmd.Kind = kindOf(cmd)
	if cmd.Verb != VerbLogin && cmd.Verb != VerbLogout && cmd.Kind == KindNone {
		return nil, epperr.New(epperr.CodeSyntaxError, "Missing object-mapping payload")
	}
	return cmd, nil
}

func kindOf(cmd *Command) ResourceKind {
	switch {
	case cmd.HostCreate != nil, cmd.HostUpdate != nil, cmd.HostDelete != nil,
		cmd.HostInfo != nil, cmd.HostCheck != nil:
		return KindHost
	case cmd.DomainCreate != nil, cmd.DomainUpdate != nil, cmd.DomainDelete != nil,
		cmd.DomainRenew != nil, cmd.DomainInfo != nil, cmd.DomainCheck != nil,
		cmd.DomainTransfer != nil:
		return KindDomain
	case cmd.ContactCreate != nil, cmd.ContactUpdate != nil, cmd.ContactDelete != nil,
		cmd.ContactInfo != nil, cmd.ContactCheck != nil:
		return KindContact
	}
	return KindNone
}
