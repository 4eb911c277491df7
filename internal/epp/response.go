package epp

import (
	"encoding/xml"
	"fmt"
	"time"

	"registryd/pkg/epperr"
)

// Time is a timestamp rendered as ISO 8601 UTC in response documents.
type Time time.Time

// MarshalXML implements xml.Marshaler.
func (t Time) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(time.Time(t).UTC().Format(time.RFC3339), start)
}

// OptTime wraps t for an optional response element, mapping the zero time to
// an omitted element.
func OptTime(t time.Time) *Time {
	if t.IsZero() {
		return nil
	}
	v := Time(t)
	return &v
}

// Response is a result document ready to be rendered to the registrar.
// ResData, when set, must be one of the *Data types in this package.
type Response struct {
	Code    epperr.Code
	Message string
	ResData any
	ClTRID  string
	SvTRID  string
}

// standardMessages are the RFC 5730 texts for the success family. Failure
// messages always come from the coded error.
var standardMessages = map[epperr.Code]string{
	epperr.CodeSuccess:              "Command completed successfully",
	epperr.CodeSuccessActionPending: "Command completed successfully; action pending",
	epperr.CodeSuccessNoMessages:    "Command completed successfully; no messages",
	epperr.CodeSuccessAckToDequeue:  "Command completed successfully; ack to dequeue",
	epperr.CodeSuccessEndingSession: "Command completed successfully; ending session",
}

// Success builds a success response with the standard message for code.
func Success(code epperr.Code, resData any) *Response {
	return &Response{Code: code, Message: standardMessages[code], ResData: resData}
}

// Failure builds the response for a flow error, extracting the result code
// and the stable client-facing message.
func Failure(err error) *Response {
	return &Response{Code: epperr.CodeOf(err), Message: epperr.MessageOf(err)}
}

type responseDoc struct {
	XMLName  xml.Name     `xml:"urn:ietf:params:xml:ns:epp-1.0 epp"`
	Response responseElem `xml:"response"`
}

type responseElem struct {
	Result  resultElem   `xml:"result"`
	ResData *resDataElem `xml:"resData"`
	TrID    trIDElem     `xml:"trID"`
}

type resultElem struct {
	Code    int    `xml:"code,attr"`
	Message string `xml:"msg"`
}

type resDataElem struct {
	Payload any
}

type trIDElem struct {
	ClTRID string `xml:"clTRID,omitempty"`
	SvTRID string `xml:"svTRID"`
}

// Encode renders the response as an EPP result document.
func (r *Response) Encode() ([]byte, error) {
	doc := responseDoc{
		Response: responseElem{
			Result: resultElem{Code: int(r.Code), Message: r.Message},
			TrID:   trIDElem{ClTRID: r.ClTRID, SvTRID: r.SvTRID},
		},
	}
	if r.ResData != nil {
		doc.Response.ResData = &resDataElem{Payload: r.ResData}
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// --- check data ---

// CheckName is a checked identifier with its availability flag.
type CheckName struct {
	Available bool   `xml:"avail,attr"`
	Value     string `xml:",chardata"`
}

// CheckResult is one <cd> entry in a check response.
type CheckResult struct {
	Name   CheckName `xml:"name"`
	Reason string    `xml:"reason,omitempty"`
}

// checkContactResult mirrors CheckResult for the contact mapping, which keys
// on <id> rather than <name>.
type checkContactResult struct {
	ID     CheckName `xml:"id"`
	Reason string    `xml:"reason,omitempty"`
}

type HostCheckData struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:host-1.0 chkData"`
	Results []CheckResult `xml:"cd"`
}

type DomainCheckData struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:domain-1.0 chkData"`
	Results []CheckResult `xml:"cd"`
}

type ContactCheckData struct {
	XMLName xml.Name             `xml:"urn:ietf:params:xml:ns:contact-1.0 chkData"`
	Results []checkContactResult `xml:"cd"`
}

// NewContactCheckData builds contact check data from generic results.
func NewContactCheckData(results []CheckResult) *ContactCheckData {
	d := &ContactCheckData{}
	for _, r := range results {
		d.Results = append(d.Results, checkContactResult{ID: r.Name, Reason: r.Reason})
	}
	return d
}

// --- host data ---

type HostCreateData struct {
	XMLName      xml.Name `xml:"urn:ietf:params:xml:ns:host-1.0 creData"`
	Name         string   `xml:"name"`
	CreationDate Time     `xml:"crDate"`
}

type HostInfoData struct {
	XMLName           xml.Name     `xml:"urn:ietf:params:xml:ns:host-1.0 infData"`
	Name              string       `xml:"name"`
	RepoID            string       `xml:"roid"`
	Statuses          []StatusElem `xml:"status"`
	Addrs             []HostAddr   `xml:"addr"`
	SponsorRegistrar  string       `xml:"clID"`
	CreationRegistrar string       `xml:"crID"`
	CreationDate      Time         `xml:"crDate"`
	UpdateRegistrar   string       `xml:"upID,omitempty"`
	UpdateDate        *Time        `xml:"upDate"`
	TransferDate      *Time        `xml:"trDate"`
}

// --- domain data ---

type DomainCreateData struct {
	XMLName        xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 creData"`
	Name           string   `xml:"name"`
	CreationDate   Time     `xml:"crDate"`
	ExpirationDate Time     `xml:"exDate"`
}

type DomainRenewData struct {
	XMLName        xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 renData"`
	Name           string   `xml:"name"`
	ExpirationDate Time     `xml:"exDate"`
}

type DomainTransferData struct {
	XMLName        xml.Name `xml:"urn:ietf:params:xml:ns:domain-1.0 trnData"`
	Name           string   `xml:"name"`
	TransferStatus string   `xml:"trStatus"`
	GainingID      string   `xml:"reID"`
	RequestDate    Time     `xml:"reDate"`
	LosingID       string   `xml:"acID"`
	ActionDate     Time     `xml:"acDate"`
	ExpirationDate *Time    `xml:"exDate"`
}

type DomainInfoData struct {
	XMLName           xml.Name        `xml:"urn:ietf:params:xml:ns:domain-1.0 infData"`
	Name              string          `xml:"name"`
	RepoID            string          `xml:"roid"`
	Statuses          []StatusElem    `xml:"status"`
	Registrant        string          `xml:"registrant,omitempty"`
	Contacts          []DomainContact `xml:"contact"`
	NS                *DomainNS       `xml:"ns"`
	SubordinateHosts  []string        `xml:"host"`
	SponsorRegistrar  string          `xml:"clID"`
	CreationRegistrar string          `xml:"crID"`
	CreationDate      Time            `xml:"crDate"`
	UpdateRegistrar   string          `xml:"upID,omitempty"`
	UpdateDate        *Time           `xml:"upDate"`
	ExpirationDate    Time            `xml:"exDate"`
	TransferDate      *Time           `xml:"trDate"`
}

// --- contact data ---

type ContactCreateData struct {
	XMLName      xml.Name `xml:"urn:ietf:params:xml:ns:contact-1.0 creData"`
	ID           string   `xml:"id"`
	CreationDate Time     `xml:"crDate"`
}

type ContactInfoData struct {
	XMLName           xml.Name           `xml:"urn:ietf:params:xml:ns:contact-1.0 infData"`
	ID                string             `xml:"id"`
	RepoID            string             `xml:"roid"`
	Statuses          []StatusElem       `xml:"status"`
	PostalInfo        *ContactPostalInfo `xml:"postalInfo"`
	Voice             string             `xml:"voice,omitempty"`
	Email             string             `xml:"email,omitempty"`
	SponsorRegistrar  string             `xml:"clID"`
	CreationRegistrar string             `xml:"crID"`
	CreationDate      Time               `xml:"crDate"`
	UpdateRegistrar   string             `xml:"upID,omitempty"`
	UpdateDate        *Time              `xml:"upDate"`
	TransferDate      *Time              `xml:"trDate"`
}
