package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnrobert/macusers/internal/auth"
	"github.com/hnrobert/macusers/internal/config"
	"github.com/hnrobert/macusers/internal/macusers"
	"github.com/hnrobert/macusers/internal/snapmon"
	"github.com/hnrobert/macusers/internal/token"
)

// Reference sha512-crypt vector from the SHA-crypt specification; the
// password is "Hello world!".
const operatorHash = "$6$saltstring$svn8UoSVapNtMuq1ukKS4tPQd8iKwSMHWjl/O817G3uBnIFNjnQJuesI68u4OTLiBFdcbYEdFCoEOfaS35inz1"

const listShellFixture = `daemon                 /usr/bin/false
jane                   /bin/zsh
mike                   /bin/bash
root                   /bin/sh
`

const listUniqueIDFixture = `daemon                 1
jane                   501
mike                   502
root                   0
`

type fakeResp struct {
	stdout string
	stderr string
	err    error
}

type fakeRunner struct {
	responses map[string]fakeResp
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	key := name + " " + strings.Join(args, " ")
	r, ok := f.responses[key]
	if !ok {
		return "", "", errors.New("no fixture: " + key)
	}
	return r.stdout, r.stderr, r.err
}

func newTestApp(t *testing.T, extra map[string]fakeResp) *App {
	t.Helper()
	responses := map[string]fakeResp{
		"/usr/bin/dscl . -list /Users UniqueID":  {stdout: listUniqueIDFixture},
		"/usr/bin/dscl . -list /Users UserShell": {stdout: listShellFixture},
	}
	for k, v := range extra {
		responses[k] = v
	}

	dataDir := t.TempDir()
	cfgStore := config.NewStore(filepath.Join(dataDir, "config.json"))
	require.NoError(t, cfgStore.Ensure())
	require.NoError(t, cfgStore.SetOperator("operator", operatorHash))

	tokStore := token.NewStore(filepath.Join(dataDir, "tokens.json"))
	require.NoError(t, tokStore.Ensure())

	snapStore := snapmon.NewStore(filepath.Join(dataDir, "snapshots"))
	require.NoError(t, snapStore.Ensure())

	app, err := newApp(macusers.New(&fakeRunner{responses: responses}), cfgStore, tokStore, snapStore)
	require.NoError(t, err)
	return app
}

func doRequest(app *App, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	app.routes().ServeHTTP(w, r)
	return w
}

func bearer(t *testing.T, app *App, username string, admin bool) map[string]string {
	t.Helper()
	tok, err := auth.SignHS256(app.secret, username, admin, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + tok}
}

func TestHealthzOpen(t *testing.T) {
	app := newTestApp(t, nil)
	w := doRequest(app, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestRequireAuth(t *testing.T) {
	app := newTestApp(t, nil)
	for _, target := range []string{"/api/users", "/api/console", "/api/status", "/api/snapshots"} {
		w := doRequest(app, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, nil)

	w := doRequest(app, http.MethodPost, "/api/login", `{"username":"operator","password":"Hello world!"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token    string `json:"token"`
		Username string `json:"username"`
		Admin    bool   `json:"admin"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "operator", resp.Username)
	assert.True(t, resp.Admin)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, auth.DefaultCookieName, cookies[0].Name)

	w = doRequest(app, http.MethodPost, "/api/login", `{"username":"operator","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUsersListing(t *testing.T) {
	app := newTestApp(t, nil)

	w := doRequest(app, http.MethodGet, "/api/users", "", bearer(t, app, "operator", false))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Users []string `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"jane", "mike"}, resp.Users)
}

func TestUserLookupNotFound(t *testing.T) {
	app := newTestApp(t, map[string]fakeResp{
		"/usr/bin/dscl . -read /Users/ghost RealName UniqueID PrimaryGroupID NFSHomeDirectory UserShell GeneratedUID": {
			err: errors.New("eDSRecordNotFound"),
		},
	})

	w := doRequest(app, http.MethodGet, "/api/users/ghost", "", bearer(t, app, "operator", false))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServiceTokenAccess(t *testing.T) {
	app := newTestApp(t, nil)
	tok, err := app.tokens.Create("operator", "inventory-job", time.Time{})
	require.NoError(t, err)

	hdr := map[string]string{"Authorization": "Bearer " + tok.Value}
	w := doRequest(app, http.MethodGet, "/api/users", "", hdr)
	assert.Equal(t, http.StatusOK, w.Code)

	// Service tokens never reach admin endpoints.
	w = doRequest(app, http.MethodGet, "/api/tokens", "", hdr)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTokensAdminFlow(t *testing.T) {
	app := newTestApp(t, nil)
	admin := bearer(t, app, "operator", true)

	w := doRequest(app, http.MethodPost, "/api/tokens", `{"label":"ci"}`, admin)
	require.Equal(t, http.StatusCreated, w.Code)
	var created token.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Value)

	// Listing redacts the secret value.
	w = doRequest(app, http.MethodGet, "/api/tokens", "", admin)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Tokens []token.Token `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Tokens, 1)
	assert.Empty(t, listed.Tokens[0].Value)

	w = doRequest(app, http.MethodPost, "/api/tokens/revoke", `{"id":"`+created.ID+`"}`, admin)
	assert.Equal(t, http.StatusOK, w.Code)

	// Non-admin sessions get a 403.
	w = doRequest(app, http.MethodGet, "/api/tokens", "", bearer(t, app, "jane", false))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConfigEndpoints(t *testing.T) {
	app := newTestApp(t, nil)
	admin := bearer(t, app, "operator", true)

	w := doRequest(app, http.MethodPost, "/api/config/listing", `{"min_user_id":200,"include_root":true}`, admin)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(app, http.MethodGet, "/api/config", "", admin)
	require.Equal(t, http.StatusOK, w.Code)
	var cfg config.Config
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, 200, cfg.MinUserID)
	assert.True(t, cfg.IncludeRoot)
	assert.Empty(t, cfg.OperatorHash)
}

func TestSnapshotLatest(t *testing.T) {
	app := newTestApp(t, nil)
	authed := bearer(t, app, "operator", false)

	w := doRequest(app, http.MethodGet, "/api/snapshots/latest", "", authed)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, app.snaps.Append(snapmon.Sample{ConsoleUser: "jane"}, 0))
	w = doRequest(app, http.MethodGet, "/api/snapshots/latest", "", authed)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"jane"`)
}

func TestDocsRendersNotice(t *testing.T) {
	app := newTestApp(t, nil)
	require.NoError(t, app.cfg.SetNotice("# Maintenance window\n\nSunday 02:00."))

	w := doRequest(app, http.MethodGet, "/docs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1")
	assert.Contains(t, w.Body.String(), "Maintenance window")
}
