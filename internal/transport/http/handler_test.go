package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registryd/internal/flows"
	"registryd/internal/model"
	"registryd/internal/platform/metrics"
	"registryd/internal/queue"
	"registryd/internal/registries"
	"registryd/internal/session"
	"registryd/internal/store"
	"registryd/internal/store/memory"
)

func newTestServer(t *testing.T, opts ...HandlerOption) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	reg, err := registries.New(registries.StaticLoader(
		registries.TLD{Name: "test", RoidSuffix: "TEST"},
	))
	require.NoError(t, err)

	hash, err := model.HashPassword("foo-BAR2")
	require.NoError(t, err)

	st := memory.New()
	err = st.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return store.Put(ctx, tx, store.Key{Kind: store.KindRegistrar, ID: "TheRegistrar"}, &model.Registrar{
			ID:           "TheRegistrar",
			Name:         "The Registrar Inc.",
			PasswordHash: hash,
		})
	})
	require.NoError(t, err)

	tasks := queue.NewMemory()
	sessions := session.NewMemory(time.Hour)
	promReg := prometheus.NewRegistry()
	runner := flows.NewRunner(st, reg, tasks, tasks, sessions, metrics.New(promReg), logger)

	handler := NewHandler(runner, sessions, logger, opts...)
	srv := httptest.NewServer(NewRouter(handler, promReg, logger))
	t.Cleanup(srv.Close)
	return srv
}

func postCommand(t *testing.T, srv *httptest.Server, sessionID, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/epp", strings.NewReader(body))
	require.NoError(t, err)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}

const loginXML = `<?xml version="1.0"?>
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <command>
    <login>
      <clID>TheRegistrar</clID>
      <pw>foo-BAR2</pw>
    </login>
    <clTRID>ABC-12345</clTRID>
  </command>
</epp>`

const contactCreateXML = `<?xml version="1.0"?>
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <command>
    <create>
      <contact:create xmlns:contact="urn:ietf:params:xml:ns:contact-1.0">
        <contact:id>sh8013</contact:id>
        <contact:postalInfo type="int">
          <contact:name>John Doe</contact:name>
        </contact:postalInfo>
        <contact:email>jdoe@example.com</contact:email>
      </contact:create>
    </create>
    <clTRID>ABC-12346</clTRID>
  </command>
</epp>`

const logoutXML = `<?xml version="1.0"?>
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <command>
    <logout/>
    <clTRID>ABC-12347</clTRID>
  </command>
</epp>`

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp := postCommand(t, srv, "", loginXML)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `code="1000"`)
	assert.Contains(t, body, "<clTRID>ABC-12345</clTRID>")

	sessionID := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, sessionID, "login should issue a session")

	resp = postCommand(t, srv, sessionID, contactCreateXML)
	body = readBody(t, resp)
	assert.Contains(t, body, `code="1000"`)
	assert.Contains(t, body, "sh8013")

	resp = postCommand(t, srv, sessionID, logoutXML)
	body = readBody(t, resp)
	assert.Contains(t, body, `code="1500"`)

	// The destroyed session no longer authenticates.
	resp = postCommand(t, srv, sessionID, contactCreateXML)
	body = readBody(t, resp)
	assert.Contains(t, body, `code="2002"`)
	assert.Contains(t, body, "Registrar is not logged in")
}

func TestCommandWithoutLogin(t *testing.T) {
	srv := newTestServer(t)

	resp := postCommand(t, srv, "", contactCreateXML)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `code="2002"`)
}

func TestBadLoginPassword(t *testing.T) {
	srv := newTestServer(t)

	resp := postCommand(t, srv, "", strings.Replace(loginXML, "foo-BAR2", "wrong", 1))
	body := readBody(t, resp)
	assert.Contains(t, body, `code="2200"`)
	assert.Empty(t, resp.Header.Get(SessionHeader))
}

func TestMalformedCommand(t *testing.T) {
	srv := newTestServer(t)

	resp := postCommand(t, srv, "", "<epp>not a command")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `code="2001"`)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

const contactAddServerStatusXML = `<?xml version="1.0"?>
<epp xmlns="urn:ietf:params:xml:ns:epp-1.0">
  <command>
    <update>
      <contact:update xmlns:contact="urn:ietf:params:xml:ns:contact-1.0">
        <contact:id>sh8013</contact:id>
        <contact:add>
          <contact:status s="serverUpdateProhibited"/>
        </contact:add>
      </contact:update>
    </update>
    <clTRID>ABC-12348</clTRID>
  </command>
</epp>`

func TestSuperuserHeader(t *testing.T) {
	srv := newTestServer(t, WithSuperusers([]string{"TheRegistrar"}))

	resp := postCommand(t, srv, "", loginXML)
	sessionID := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	resp = postCommand(t, srv, sessionID, contactCreateXML)
	assert.Contains(t, readBody(t, resp), `code="1000"`)

	// Server statuses are off limits without the superuser header.
	resp = postCommand(t, srv, sessionID, contactAddServerStatusXML)
	assert.Contains(t, readBody(t, resp), `code="2306"`)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/epp", strings.NewReader(contactAddServerStatusXML))
	require.NoError(t, err)
	req.Header.Set(SessionHeader, sessionID)
	req.Header.Set(SuperuserHeader, "1")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Contains(t, readBody(t, raw), `code="1000"`)
}

func TestSuperuserHeaderIgnoredForOrdinaryRegistrar(t *testing.T) {
	srv := newTestServer(t)

	resp := postCommand(t, srv, "", loginXML)
	sessionID := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, sessionID)

	resp = postCommand(t, srv, sessionID, contactCreateXML)
	assert.Contains(t, readBody(t, resp), `code="1000"`)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/epp", strings.NewReader(contactAddServerStatusXML))
	require.NoError(t, err)
	req.Header.Set(SessionHeader, sessionID)
	req.Header.Set(SuperuserHeader, "1")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Contains(t, readBody(t, raw), `code="2306"`)
}
