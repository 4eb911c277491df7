// Package registries holds the TLD configuration cache. TLD definitions are
// read-mostly reference data: loaded once, cached process-wide, and refreshed
// only through an explicit Invalidate from administrative tooling. Flows
// treat the cached set as a point-in-time snapshot and never mutate it
// mid-flow.
package registries

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTransferPendingPeriod is how long a requested transfer stays
// pending before implicit server approval.
const DefaultTransferPendingPeriod = 5 * 24 * time.Hour

// TLD is the configuration for one top-level domain this registry manages.
type TLD struct {
	// Name is the TLD in canonical lower-case form, possibly multipart
	// (e.g. "co.test").
	Name string `yaml:"name"`
	// RoidSuffix is the repository-id suffix for resources under this TLD.
	RoidSuffix string `yaml:"roid_suffix"`
	// TransferPendingPeriod overrides DefaultTransferPendingPeriod when set.
	TransferPendingPeriod time.Duration `yaml:"transfer_pending_period,omitempty"`
	// ReservedLabels may not be registered as second-level names.
	ReservedLabels []string `yaml:"reserved_labels,omitempty"`
}

// UnmarshalYAML accepts transfer_pending_period as a duration string
// ("48h"), which yaml cannot decode into time.Duration on its own.
func (t *TLD) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name                  string   `yaml:"name"`
		RoidSuffix            string   `yaml:"roid_suffix"`
		TransferPendingPeriod string   `yaml:"transfer_pending_period"`
		ReservedLabels        []string `yaml:"reserved_labels"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	t.Name = raw.Name
	t.RoidSuffix = raw.RoidSuffix
	t.ReservedLabels = raw.ReservedLabels
	if raw.TransferPendingPeriod != "" {
		d, err := time.ParseDuration(raw.TransferPendingPeriod)
		if err != nil {
			return fmt.Errorf("transfer_pending_period: %w", err)
		}
		t.TransferPendingPeriod = d
	}
	return nil
}

// PendingPeriod returns the effective transfer pending period.
func (t TLD) PendingPeriod() time.Duration {
	if t.TransferPendingPeriod > 0 {
		return t.TransferPendingPeriod
	}
	return DefaultTransferPendingPeriod
}

// IsReserved reports whether the second-level label is blocked on this TLD.
func (t TLD) IsReserved(label string) bool {
	for _, r := range t.ReservedLabels {
		if r == label {
			return true
		}
	}
	return false
}

// Loader produces the current TLD set, typically from a YAML file.
type Loader func() ([]TLD, error)

// FileLoader reads TLD definitions from a YAML file of the form:
//
//	tlds:
//	  - name: test
//	    roid_suffix: TEST
func FileLoader(path string) Loader {
	return func() ([]TLD, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read tld config: %w", err)
		}
		var doc struct {
			TLDs []TLD `yaml:"tlds"`
		}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse tld config: %w", err)
		}
		return doc.TLDs, nil
	}
}

// StaticLoader serves a fixed TLD set; used by tests and dev mode.
func StaticLoader(tlds ...TLD) Loader {
	return func() ([]TLD, error) { return tlds, nil }
}

// Registries is the invalidate-on-write cache over the TLD set.
type Registries struct {
	loader Loader

	mu     sync.RWMutex
	byName map[string]TLD
}

// New builds the cache and performs the initial load.
func New(loader Loader) (*Registries, error) {
	r := &Registries{loader: loader}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registries) reload() error {
	tlds, err := r.loader()
	if err != nil {
		return err
	}
	byName := make(map[string]TLD, len(tlds))
	for _, t := range tlds {
		byName[strings.ToLower(t.Name)] = t
	}
	r.mu.Lock()
	r.byName = byName
	r.mu.Unlock()
	return nil
}

// Invalidate discards the cached set and reloads. Called by administrative
// tooling after a configuration change; never called by flows.
func (r *Registries) Invalidate() error { return r.reload() }

// Get returns the TLD configuration by exact name.
func (r *Registries) Get(name string) (TLD, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[strings.ToLower(name)]
	return t, ok
}

// FindTLDForName returns the TLD a fully qualified name falls under,
// preferring the longest matching suffix so multipart TLDs win over their
// tails. Returns false for names on TLDs this registry does not run.
func (r *Registries) FindTLDForName(name string) (TLD, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	labels := strings.Split(strings.ToLower(name), ".")
	for i := 1; i < len(labels); i++ {
		suffix := strings.Join(labels[i:], ".")
		if t, ok := r.byName[suffix]; ok {
			return t, true
		}
	}
	return TLD{}, false
}

// DomainNameUnder returns the second-level domain name that a hostname falls
// under for the given TLD (e.g. "ns1.example.test" under "test" yields
// "example.test"), and false when the hostname is the domain itself or
// shallower.
func DomainNameUnder(hostname string, tld TLD) (string, bool) {
	labels := strings.Split(strings.ToLower(hostname), ".")
	tldLabels := strings.Split(tld.Name, ".")
	keep := len(tldLabels) + 1
	if len(labels) <= keep {
		return "", false
	}
	return strings.Join(labels[len(labels)-keep:], "."), true
}
