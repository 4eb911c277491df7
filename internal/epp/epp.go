// Package epp implements the wire shape of the Extensible Provisioning
// Protocol subset this registry speaks: XML command envelopes in, result
// documents out. Parsing stops at syntax; semantic validation belongs to the
// flows.
package epp

// XML namespaces for the protocol and the object mappings.
const (
	NamespaceEPP     = "urn:ietf:params:xml:ns:epp-1.0"
	NamespaceHost    = "urn:ietf:params:xml:ns:host-1.0"
	NamespaceDomain  = "urn:ietf:params:xml:ns:domain-1.0"
	NamespaceContact = "urn:ietf:params:xml:ns:contact-1.0"
)

// Verb is a protocol command verb, with transfer split by its op attribute.
type Verb string

const (
	VerbLogin  Verb = "login"
	VerbLogout Verb = "logout"
	VerbCreate Verb = "create"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
	VerbRenew  Verb = "renew"
	VerbInfo   Verb = "info"
	VerbCheck  Verb = "check"

	VerbTransferRequest Verb = "transfer-request"
	VerbTransferApprove Verb = "transfer-approve"
	VerbTransferReject  Verb = "transfer-reject"
	VerbTransferCancel  Verb = "transfer-cancel"
)

// ResourceKind is the object mapping a command targets.
type ResourceKind string

const (
	KindNone    ResourceKind = ""
	KindHost    ResourceKind = "host"
	KindDomain  ResourceKind = "domain"
	KindContact ResourceKind = "contact"
)

// Command is a decoded, normalized EPP command. Exactly one payload pointer
// matching (Verb, Kind) is non-nil.
type Command struct {
	Verb   Verb
	Kind   ResourceKind
	ClTRID string
	// Raw is the request document as received, retained for history entries.
	Raw []byte

	Login *Login

	HostCreate *HostCreate
	HostUpdate *HostUpdate
	HostDelete *HostDelete
	HostInfo   *HostInfo
	HostCheck  *HostCheck

	DomainCreate   *DomainCreate
	DomainUpdate   *DomainUpdate
	DomainDelete   *DomainDelete
	DomainRenew    *DomainRenew
	DomainInfo     *DomainInfo
	DomainCheck    *DomainCheck
	DomainTransfer *DomainTransfer

	ContactCreate *ContactCreate
	ContactUpdate *ContactUpdate
	ContactDelete *ContactDelete
	ContactInfo   *ContactInfo
	ContactCheck  *ContactCheck
}

// TargetID returns the single foreign key a command addresses, or the empty
// string for multi-target and session commands.
func (c *Command) TargetID() string {
	switch {
	case c.HostCreate != nil:
		return c.HostCreate.Name
	case c.HostUpdate != nil:
		return c.HostUpdate.Name
	case c.HostDelete != nil:
		return c.HostDelete.Name
	case c.HostInfo != nil:
		return c.HostInfo.Name
	case c.DomainCreate != nil:
		return c.DomainCreate.Name
	case c.DomainUpdate != nil:
		return c.DomainUpdate.Name
	case c.DomainDelete != nil:
		return c.DomainDelete.Name
	case c.DomainRenew != nil:
		return c.DomainRenew.Name
	case c.DomainInfo != nil:
		return c.DomainInfo.Name
	case c.DomainTransfer != nil:
		return c.DomainTransfer.Name
	case c.ContactCreate != nil:
		return c.ContactCreate.ID
	case c.ContactUpdate != nil:
		return c.ContactUpdate.ID
	case c.ContactDelete != nil:
		return c.ContactDelete.ID
	case c.ContactInfo != nil:
		return c.ContactInfo.ID
	}
	return ""
}

// Login opens a session.
type Login struct {
	ClientID string `xml:"clID"`
	Password string `xml:"pw"`
}

// StatusElem is a status tag in its wire form (s attribute).
type StatusElem struct {
	Value string `xml:"s,attr"`
}

// Period is a validity period; only year units are supported.
type Period struct {
	Unit  string `xml:"unit,attr"`
	Value int    `xml:",chardata"`
}

// Years returns the period in years, defaulting to 1 when absent.
func (p *Period) Years() int {
	if p == nil || p.Value == 0 {
		return 1
	}
	return p.Value
}

// --- host payloads ---

// HostAddr is one glue address with its version attribute ("v4"/"v6").
type HostAddr struct {
	Version string `xml:"ip,attr,omitempty"`
	Address string `xml:",chardata"`
}

type HostCreate struct {
	Name  string     `xml:"name"`
	Addrs []HostAddr `xml:"addr"`
}

type HostUpdate struct {
	Name   string         `xml:"name"`
	Add    *HostAddRemove `xml:"add"`
	Remove *HostAddRemove `xml:"rem"`
	Change *HostChange    `xml:"chg"`
}

type HostAddRemove struct {
	Addrs    []HostAddr   `xml:"addr"`
	Statuses []StatusElem `xml:"status"`
}

type HostChange struct {
	Name string `xml:"name"`
}

type HostDelete struct {
	Name string `xml:"name"`
}

type HostInfo struct {
	Name string `xml:"name"`
}

type HostCheck struct {
	Names []string `xml:"name"`
}

// --- domain payloads ---

type DomainContact struct {
	Type string `xml:"type,attr"`
	ID   string `xml:",chardata"`
}

type DomainNS struct {
	HostObjs []string `xml:"hostObj"`
}

type DomainCreate struct {
	Name       string          `xml:"name"`
	Period     *Period         `xml:"period"`
	NS         *DomainNS       `xml:"ns"`
	Registrant string          `xml:"registrant"`
	Contacts   []DomainContact `xml:"contact"`
}

type DomainUpdate struct {
	Name   string           `xml:"name"`
	Add    *DomainAddRemove `xml:"add"`
	Remove *DomainAddRemove `xml:"rem"`
	Change *DomainChange    `xml:"chg"`
}

type DomainAddRemove struct {
	NS       *DomainNS       `xml:"ns"`
	Contacts []DomainContact `xml:"contact"`
	Statuses []StatusElem    `xml:"status"`
}

type DomainChange struct {
	Registrant string `xml:"registrant"`
}

type DomainDelete struct {
	Name string `xml:"name"`
}

type DomainRenew struct {
	Name       string  `xml:"name"`
	CurExpDate string  `xml:"curExpDate"`
	Period     *Period `xml:"period"`
}

type DomainInfo struct {
	Name string `xml:"name"`
}

type DomainCheck struct {
	Names []string `xml:"name"`
}

type DomainTransfer struct {
	Name   string  `xml:"name"`
	Period *Period `xml:"period"`
}

// --- contact payloads ---

type ContactPostalInfo struct {
	Name string      `xml:"name"`
	Org  string      `xml:"org"`
	Addr ContactAddr `xml:"addr"`
}

type ContactAddr struct {
	Street  []string `xml:"street"`
	City    string   `xml:"city"`
	Country string   `xml:"cc"`
}

type ContactCreate struct {
	ID         string             `xml:"id"`
	PostalInfo *ContactPostalInfo `xml:"postalInfo"`
	Voice      string             `xml:"voice"`
	Email      string             `xml:"email"`
}

type ContactUpdate struct {
	ID     string            `xml:"id"`
	Add    *ContactAddRemove `xml:"add"`
	Remove *ContactAddRemove `xml:"rem"`
	Change *ContactChange    `xml:"chg"`
}

type ContactAddRemove struct {
	Statuses []StatusElem `xml:"status"`
}

type ContactChange struct {
	PostalInfo *ContactPostalInfo `xml:"postalInfo"`
	Voice      string             `xml:"voice"`
	Email      string             `xml:"email"`
}

type ContactDelete struct {
	ID string `xml:"id"`
}

type ContactInfo struct {
	ID string `xml:"id"`
}

type ContactCheck struct {
	IDs []string `xml:"id"`
}
