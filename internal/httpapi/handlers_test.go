package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/nowserving/internal/auth"
	"github.com/DoyleJ11/nowserving/internal/engine"
	"github.com/DoyleJ11/nowserving/internal/hub"
	"github.com/DoyleJ11/nowserving/internal/metrics"
	"github.com/DoyleJ11/nowserving/internal/types"
)

type testServer struct {
	handler http.Handler
	hub     *hub.Hub
	auth    *auth.Service
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	reg, err := engine.NewRegistry(engine.DefaultTemplates())
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	h := hub.NewHub(context.Background(), reg, clock, zap.NewNop())
	t.Cleanup(h.Stop)

	svc, err := auth.NewService(auth.Options{PIN: "1357", Secret: []byte("http-secret"), Clock: clock, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)

	if opts.LoginRatePerMinute == 0 {
		opts.LoginRatePerMinute = 60
	}
	if opts.LoginBurst == 0 {
		opts.LoginBurst = 10
	}
	opts.Clock = clock
	return &testServer{handler: SetupRoutes(h, svc, zap.NewNop(), opts), hub: h, auth: svc}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeLogin(t *testing.T, rec *httptest.ResponseRecorder) loginResponse {
	t.Helper()
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLogin_Success(t *testing.T) {
	s := newTestServer(t, Options{})

	for _, body := range []string{`{"pin":"1357"}`, `{"pin":1357}`} {
		rec := s.do(http.MethodPost, "/api/auth/login", body)
		require.Equal(t, http.StatusOK, rec.Code, body)

		resp := decodeLogin(t, rec)
		assert.True(t, resp.OK)
		require.NotEmpty(t, resp.Token)
		require.NotNil(t, resp.ExpiresAt)

		claims, err := s.auth.Verify(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleStaff, claims.Role)
	}
}

func TestLogin_Failures(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		code    int
		message string
	}{
		{name: "wrong pin", body: `{"pin":"0000"}`, code: http.StatusUnauthorized, message: "Invalid PIN"},
		{name: "missing pin", body: `{}`, code: http.StatusBadRequest, message: "PIN is required"},
		{name: "empty pin", body: `{"pin":""}`, code: http.StatusBadRequest, message: "PIN is required"},
		{name: "not json", body: `pin=1357`, code: http.StatusBadRequest, message: "Invalid request body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, Options{})
			rec := s.do(http.MethodPost, "/api/auth/login", tc.body)
			assert.Equal(t, tc.code, rec.Code)

			resp := decodeLogin(t, rec)
			assert.False(t, resp.OK)
			assert.Empty(t, resp.Token)
			assert.Equal(t, tc.message, resp.Message)
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServer(t, Options{LoginRatePerMinute: 1, LoginBurst: 2})
	before := testutil.ToFloat64(metrics.AuthLoginAttemptsTotal.WithLabelValues("rate_limited"))

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/login", `{"pin":"1"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/auth/login", `{"pin":"2"}`).Code)
	// even the right PIN is refused once the budget is spent
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/auth/login", `{"pin":"1357"}`).Code)

	after := testutil.ToFloat64(metrics.AuthLoginAttemptsTotal.WithLabelValues("rate_limited"))
	assert.Equal(t, before+1, after)
}

func TestState(t *testing.T) {
	s := newTestServer(t, Options{})

	staff := make(chan hub.Snapshot, 4)
	require.NoError(t, s.hub.Submit(context.Background(), hub.Join{ClientID: "staff", Role: auth.RoleStaff, Outbox: staff}))
	require.NoError(t, s.hub.Submit(context.Background(), hub.FromClient{
		ClientID: "staff",
		Cmd:      engine.Command{Type: engine.CmdAllocate, GroupID: "tv-b", CounterID: "counter5"},
	}))

	require.Eventually(t, func() bool {
		rec := s.do(http.MethodGet, "/api/state", "")
		var msg types.ServerMessage
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &msg) != nil {
			return false
		}
		g, ok := msg.State.Group("tv-b")
		serving, _ := g.Serving("counter5")
		return ok && msg.Version == 1 && serving == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Options{})
	rec := s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hub_broadcasts_total")
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, Options{AllowedOrigin: "https://queue.example.com"})

	rec := s.do(http.MethodOptions, "/api/auth/login", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://queue.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = s.do(http.MethodGet, "/health", "")
	assert.Equal(t, "https://queue.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOriginPatterns(t *testing.T) {
	p, skip := originPatterns("*")
	assert.Nil(t, p)
	assert.True(t, skip)

	p, skip = originPatterns("https://queue.example.com")
	assert.Equal(t, []string{"queue.example.com"}, p)
	assert.False(t, skip)

	p, skip = originPatterns("*.example.com")
	assert.Equal(t, []string{"*.example.com"}, p)
	assert.False(t, skip)
}
