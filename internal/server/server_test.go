package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memestash/internal/analyze"
	"memestash/internal/config"
	"memestash/internal/database"
	"memestash/internal/generate"
	"memestash/internal/styleguide"
)

type stubGuides struct {
	latest *database.StyleGuide
	result *styleguide.Result
	err    error
}

func (g *stubGuides) Synthesize(ctx context.Context) (*styleguide.Result, error) {
	return g.result, g.err
}

func (g *stubGuides) Latest() (*database.StyleGuide, error) { return g.latest, nil }

type stubGen struct {
	result *generate.Result
	err    error
}

func (g *stubGen) Run(ctx context.Context, req generate.Request) (*generate.Result, error) {
	if req.Topic == "" {
		return nil, generate.ErrMissingTopic
	}
	return g.result, g.err
}

type stubAnalyzer struct{}

func (a *stubAnalyzer) AnalyzeAll(ctx context.Context) (*analyze.Result, error) {
	return &analyze.Result{PerPost: map[int64]error{}}, nil
}

func (a *stubAnalyzer) AnalyzeIDs(ctx context.Context, ids []int64) (*analyze.Result, error) {
	return &analyze.Result{PerPost: map[int64]error{}}, nil
}

type testServer struct {
	srv *Server
	db  *database.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.PasswordHash = hash
	cfg.Server.CollectToken = "extension-token"

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv, err := New(cfg, db, &stubGuides{}, &stubGen{result: &generate.Result{Path: generate.PathTextOnly}}, &stubAnalyzer{})
	require.NoError(t, err)
	return &testServer{srv: srv, db: db}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) loginCookie(t *testing.T) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/login",
		bytes.NewBufferString(`{"password":"hunter2"}`))
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/login",
		bytes.NewBufferString(`{"password":"wrong"}`))
	w := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestLoginSetsSessionCookie(t *testing.T) {
	ts := newTestServer(t)
	cookie := ts.loginCookie(t)
	assert.Equal(t, sessionCookie, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)
}

func TestAPIRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/trends", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "error")

	req := httptest.NewRequest(http.MethodGet, "/api/trends", nil)
	req.AddCookie(ts.loginCookie(t))
	w = ts.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidSessionRejected(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/trends", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "not-a-jwt"})
	w := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCollectPreflight(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(httptest.NewRequest(http.MethodOptions, "/api/collect", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Collect-Token")
}

func TestCollectRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/collect",
		bytes.NewBufferString(`{"url":"https://x.com/p/1"}`))
	w := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCollectUpsertsByURL(t *testing.T) {
	ts := newTestServer(t)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/collect",
			bytes.NewBufferString(`{"url":"https://x.com/p/1","text":"lol","likes":10,"platform":"twitter"}`))
		req.Header.Set("X-Collect-Token", "extension-token")
		return ts.do(req)
	}

	w := post()
	require.Equal(t, http.StatusOK, w.Code)
	var first map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, true, first["new"])

	w = post()
	require.Equal(t, http.StatusOK, w.Code)
	var second map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, false, second["new"])
	assert.Equal(t, first["id"], second["id"])

	stats, err := ts.db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPosts)
}

func TestTrendsRejectsBadDays(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/trends?days=banana", nil)
	req.AddCookie(ts.loginCookie(t))
	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStyleGuideMissing(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/style-guide", nil)
	req.AddCookie(ts.loginCookie(t))
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"exists": false}`, w.Body.String())
}

func TestSynthesizeWithEmptyCorpusConflicts(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.guides = &stubGuides{err: styleguide.ErrNoAnalyzedContent}

	req := httptest.NewRequest(http.MethodPost, "/api/style-guide", nil)
	req.AddCookie(ts.loginCookie(t))
	w := ts.do(req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGenerateMissingTopic(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/generate",
		bytes.NewBufferString(`{"topic":""}`))
	req.AddCookie(ts.loginCookie(t))
	w := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardRedirectsWithoutSession(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestDashboardRendersWithSession(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ts.loginCookie(t))
	w := ts.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memestash")
}
