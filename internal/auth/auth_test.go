package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret")

func newTestService(t *testing.T, clock clockwork.Clock) *Service {
	t.Helper()
	s, err := NewService(Options{
		PIN:        "4321",
		Secret:     testSecret,
		TokenTTL:   time.Hour,
		Clock:      clock,
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	return s
}

func TestLogin_IssuesVerifiableStaffToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	s := newTestService(t, clock)

	tok, err := s.Login("4321")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour), tok.ExpiresAt)

	claims, err := s.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, claims.Role)
}

func TestLogin_Failures(t *testing.T) {
	s := newTestService(t, clockwork.NewFakeClock())

	_, err := s.Login("")
	assert.ErrorIs(t, err, ErrPINRequired)

	_, err = s.Login("1234")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestVerify_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	s := newTestService(t, clock)

	tok, err := s.Login("4321")
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = s.Verify(tok.Value)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = s.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsForeignTokens(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	s := newTestService(t, clock)
	exp := jwt.NewNumericDate(clock.Now().Add(time.Hour))

	sign := func(t *testing.T, claims Claims, key []byte) string {
		t.Helper()
		v, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		require.NoError(t, err)
		return v
	}

	cases := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: sign(t, Claims{Role: RoleStaff, RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: exp}}, []byte("other"))},
		{name: "viewer role", token: sign(t, Claims{Role: RoleViewer, RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: exp}}, testSecret)},
		{name: "no expiry", token: sign(t, Claims{Role: RoleStaff, RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}}, testSecret)},
		{name: "wrong issuer", token: sign(t, Claims{Role: RoleStaff, RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", ExpiresAt: exp}}, testSecret)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Verify(tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestClassify(t *testing.T) {
	s := newTestService(t, clockwork.NewFakeClock())
	tok, err := s.Login("4321")
	require.NoError(t, err)

	role, err := Classify(s, "")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, role)

	role, err = Classify(s, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, role)

	_, err = Classify(s, tok.Value+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", BearerToken(r))

	r.Header.Set("Authorization", "Bearer from-header")
	assert.Equal(t, "from-header", BearerToken(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	assert.Equal(t, "", BearerToken(r))
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Options{Secret: testSecret})
	assert.ErrorIs(t, err, ErrPINRequired)

	_, err = NewService(Options{PIN: "1"})
	assert.Error(t, err)
}
