package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goGuard/internal/config"
)

func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOGUARD_JWT_SECRET", "cmd-test-secret-0123456789abcdefghij")
	t.Setenv("GOGUARD_STORE_BACKEND", "memory")
	t.Setenv("GOGUARD_IDENTITY_BACKEND", "memory")
	t.Setenv("GOGUARD_USERS", "alice=admin,bob=guest")
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	testEnv(t)

	env, err := config.Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := openRuntime(context.Background(), env, logger)
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	srv := httptest.NewServer(newRouter(rt, logger))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func login(t *testing.T, srv *httptest.Server, subject string) sessionResponse {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/auth/dev-login", "", `{"subject":"`+subject+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Code
}

func TestServeRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/me", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "NO_TOKEN", errorCode(t, resp))

	bob := login(t, srv, "bob")
	resp = do(t, http.MethodGet, srv.URL+"/me", bob.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	assert.Equal(t, "bob", me["subject"])
	assert.Equal(t, "guest", me["role"])

	resp = do(t, http.MethodGet, srv.URL+"/admin", bob.AccessToken, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(t, resp))

	alice := login(t, srv, "alice")
	resp = do(t, http.MethodPost, srv.URL+"/admin/blacklist", alice.AccessToken, `{"token_id":"`+me["token_id"]+`"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/me", bob.AccessToken, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "TOKEN_BLACKLISTED", errorCode(t, resp))

	resp = do(t, http.MethodPost, srv.URL+"/auth/logout", alice.AccessToken, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/admin", alice.AccessToken, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/auth/dev-login", "", `{"subject":"mallory"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "USER_NOT_FOUND", errorCode(t, resp))

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	metrics, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "goguard_session_issued_total 2")
	assert.Contains(t, string(metrics), "goguard_authorize_denied_total 1")
}

func TestServeRefresh(t *testing.T) {
	srv := newTestServer(t)
	bob := login(t, srv, "bob")

	resp := do(t, http.MethodPost, srv.URL+"/auth/refresh", "", `{"refresh_token":"`+bob.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	resp = do(t, http.MethodGet, srv.URL+"/me", out.AccessToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, BuildVersion+"\n", out)
}

func TestIssueCommand(t *testing.T) {
	testEnv(t)

	out, err := execute(t, "issue", "--subject", "alice")
	require.NoError(t, err)

	var pair issuedPair
	require.NoError(t, json.Unmarshal([]byte(out), &pair))
	assert.Equal(t, "alice", pair.Subject)
	assert.Equal(t, "admin", pair.Role)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessTokenID, pair.RefreshTokenID)

	_, err = execute(t, "issue", "--subject", "nobody")
	assert.Error(t, err)

	out, err = execute(t, "revoke", pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "revoked\n", out)

	_, err = execute(t, "revoke", "not-a-token")
	assert.Error(t, err)

	out, err = execute(t, "prune")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pruned "))
}

func TestUnknownBackend(t *testing.T) {
	testEnv(t)
	t.Setenv("GOGUARD_STORE_BACKEND", "cassandra")

	_, err := execute(t, "prune")
	assert.ErrorContains(t, err, "unknown store backend")
}
