package registries_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registryd/internal/registries"
)

func newRegistries(t *testing.T, tlds ...registries.TLD) *registries.Registries {
	t.Helper()
	r, err := registries.New(registries.StaticLoader(tlds...))
	require.NoError(t, err)
	return r
}

func TestGetIsCaseInsensitive(t *testing.T) {
	r := newRegistries(t, registries.TLD{Name: "Test", RoidSuffix: "TEST"})

	tld, ok := r.Get("TEST")
	require.True(t, ok)
	assert.Equal(t, "Test", tld.Name)

	_, ok = r.Get("example")
	assert.False(t, ok)
}

func TestFindTLDForName(t *testing.T) {
	r := newRegistries(t,
		registries.TLD{Name: "test", RoidSuffix: "TEST"},
		registries.TLD{Name: "co.test", RoidSuffix: "COTEST"},
	)

	tests := []struct {
		name    string
		want    string
		matched bool
	}{
		{"example.test", "test", true},
		{"example.co.test", "co.test", true},
		{"ns1.example.co.test", "co.test", true},
		{"example.com", "", false},
		{"test", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tld, ok := r.FindTLDForName(tc.name)
			require.Equal(t, tc.matched, ok)
			if ok {
				assert.Equal(t, tc.want, tld.Name)
			}
		})
	}
}

func TestDomainNameUnder(t *testing.T) {
	test := registries.TLD{Name: "test"}
	cotest := registries.TLD{Name: "co.test"}

	name, ok := registries.DomainNameUnder("ns1.example.test", test)
	require.True(t, ok)
	assert.Equal(t, "example.test", name)

	name, ok = registries.DomainNameUnder("a.b.example.co.test", cotest)
	require.True(t, ok)
	assert.Equal(t, "example.co.test", name)

	_, ok = registries.DomainNameUnder("example.test", test)
	assert.False(t, ok)
}

func TestPendingPeriodDefault(t *testing.T) {
	assert.Equal(t, registries.DefaultTransferPendingPeriod, registries.TLD{}.PendingPeriod())
	assert.Equal(t, 48*time.Hour, registries.TLD{TransferPendingPeriod: 48 * time.Hour}.PendingPeriod())
}

func TestIsReserved(t *testing.T) {
	tld := registries.TLD{Name: "test", ReservedLabels: []string{"reserved", "nic"}}
	assert.True(t, tld.IsReserved("reserved"))
	assert.True(t, tld.IsReserved("nic"))
	assert.False(t, tld.IsReserved("example"))
}

func TestFileLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tlds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`tlds:
  - name: test
    roid_suffix: TEST
    reserved_labels: [reserved]
  - name: example
    roid_suffix: EXMPL
    transfer_pending_period: 48h
`), 0o600))

	r, err := registries.New(registries.FileLoader(path))
	require.NoError(t, err)

	tld, ok := r.Get("test")
	require.True(t, ok)
	assert.Equal(t, "TEST", tld.RoidSuffix)
	assert.True(t, tld.IsReserved("reserved"))

	tld, ok = r.Get("example")
	require.True(t, ok)
	assert.Equal(t, 48*time.Hour, tld.PendingPeriod())
}

func TestInvalidateReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tlds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tlds:\n  - name: test\n    roid_suffix: TEST\n"), 0o600))

	r, err := registries.New(registries.FileLoader(path))
	require.NoError(t, err)
	_, ok := r.Get("example")
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("tlds:\n  - name: example\n    roid_suffix: EXMPL\n"), 0o600))
	require.NoError(t, r.Invalidate())

	_, ok = r.Get("example")
	assert.True(t, ok)
	_, ok = r.Get("test")
	assert.False(t, ok)
}
