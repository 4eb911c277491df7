package flows

import (
	"strings"

	"golang.org/x/net/idna"

	"registryd/internal/registries"
	"registryd/pkg/epperr"
)

const maxHostNameLength = 253

// validateHostName checks hostname syntax and normalization. Names must
// arrive already canonical: lower-case, puny-coded, no empty labels. Depth
// policy: a name under one of our TLDs must sit at least two levels below
// it (the domain plus a host label); other names need at least three parts,
// treating the unknown TLD itself as the public suffix.
func validateHostName(name string, regs *registries.Registries) error {
	if name == "" {
		return epperr.New(epperr.CodeRequiredParameterMissing, "Host name is required")
	}
	if len(name) > maxHostNameLength {
		return epperr.New(epperr.CodeParameterValueRangeError,
			"Host names are limited to 253 characters")
	}
	if lower := strings.ToLower(name); name != lower {
		return epperr.Newf(epperr.CodeParameterValueSyntaxError,
			"Host names must be in lower-case; expected %s", lower)
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return epperr.New(epperr.CodeParameterValueSyntaxError, "Invalid host name")
	}
	if ascii != name {
		return epperr.Newf(epperr.CodeParameterValueSyntaxError,
			"Host names must be puny-coded; expected %s", ascii)
	}
	labels := strings.Split(name, ".")
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return epperr.New(epperr.CodeParameterValueSyntaxError, "Invalid host name")
		}
	}
	minParts := 3
	if tld, ok := regs.FindTLDForName(name); ok {
		minParts = len(strings.Split(tld.Name, ".")) + 2
	}
	if len(labels) < minParts {
		return epperr.New(epperr.CodeParameterValuePolicyError,
			"Host names must be at least two levels below the public suffix")
	}
	return nil
}

// validateDomainName checks second-level domain name syntax against the TLDs
// this registry runs, returning the TLD and the registered label.
func validateDomainName(name string, regs *registries.Registries) (registries.TLD, string, error) {
	if name == "" {
		return registries.TLD{}, "", epperr.New(epperr.CodeRequiredParameterMissing,
			"Domain name is required")
	}
	labels := strings.Split(name, ".")
	for _, label := range labels {
		if label == "" {
			return registries.TLD{}, "", epperr.New(epperr.CodeParameterValueSyntaxError,
				"No part of a domain name can be empty")
		}
		if len(label) > 63 {
			return registries.TLD{}, "", epperr.New(epperr.CodeParameterValueSyntaxError,
				"Domain labels cannot be longer than 63 characters")
		}
		for _, r := range label {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
				return registries.TLD{}, "", epperr.New(epperr.CodeParameterValueSyntaxError,
					"Domain names can only contain a-z, 0-9, '.' and '-'")
			}
		}
		if label[0] == '-' {
			return registries.TLD{}, "", epperr.New(epperr.CodeParameterValueSyntaxError,
				"Domain labels cannot begin with a dash")
		}
		if label[len(label)-1] == '-' {
			return registries.TLD{}, "", epperr.New(epperr.CodeParameterValueSyntaxError,
				"Domain labels cannot end with a dash")
		}
		if strings.HasPrefix(label, "xn--") {
			if _, err := idna.Lookup.ToUnicode(label); err != nil {
				return registries.TLD{}, "", epperr.New(epperr.CodeParameterValueSyntaxError,
					"Domain name starts with xn-- but is not a valid IDN")
			}
		} else if len(label) >= 4 && label[2] == '-' && label[3] == '-' {
			return registries.TLD{}, "", epperr.New(epperr.CodeParameterValueSyntaxError,
				"Non-IDN domain names cannot contain dashes in the third or fourth position")
		}
	}
	tld, ok := regs.FindTLDForName(name)
	if !ok {
		return registries.TLD{}, "", epperr.Newf(epperr.CodeParameterValuePolicyError,
			"Domain name is under tld %s which doesn't exist", labels[len(labels)-1])
	}
	tldParts := len(strings.Split(tld.Name, "."))
	if len(labels) != tldParts+1 {
		return registries.TLD{}, "", epperr.New(epperr.CodeParameterValueSyntaxError,
			"Domain name must have exactly one part above the TLD")
	}
	return tld, labels[0], nil
}
