package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

const secret = "test-secret"

type stubEntitlements struct {
	has bool
	err error
	n   int
}

func (s *stubEntitlements) HasAccess(context.Context, shared.UserID) (bool, error) {
	s.n++
	return s.has, s.err
}

func mint(t *testing.T, p *JWTProvider, pr access.Principal) string {
	t.Helper()
	tok, err := p.Mint(pr)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestNewJWTProvider_RequiresSecret(t *testing.T) {
	_, err := NewJWTProvider("")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestPrincipal_MapsClaims(t *testing.T) {
	p, err := NewJWTProvider(secret, WithIssuer("vitality-hub"))
	require.NoError(t, err)

	header := mint(t, p, access.Principal{
		UserID:      "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		HasAccess:   true,
	})

	got := p.Principal(context.Background(), header)
	assert.Equal(t, access.Principal{
		Authenticated: true,
		UserID:        "alice",
		DisplayName:   "Alice",
		Email:         "alice@example.com",
		HasAccess:     true,
	}, got)
}

func TestPrincipal_InvalidTokensAreAnonymous(t *testing.T) {
	p, _ := NewJWTProvider(secret)
	other, _ := NewJWTProvider("another-secret")

	expired, _ := NewJWTProvider(secret)
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Admin:            true,
	})
	noneTok, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":         "",
		"no scheme":     "token",
		"basic":         "Basic dXNlcjpwYXNz",
		"garbage":       "Bearer not.a.jwt",
		"bad signature": mint(t, other, access.Principal{UserID: "alice", IsAdmin: true}),
		"expired":       mint(t, expired, access.Principal{UserID: "alice"}),
		"alg none":      "Bearer " + noneTok,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, access.Anonymous, p.Principal(context.Background(), header))
		})
	}
}

func TestPrincipal_IssuerMismatch(t *testing.T) {
	issuing, _ := NewJWTProvider(secret, WithIssuer("someone-else"))
	p, _ := NewJWTProvider(secret, WithIssuer("vitality-hub"))

	got := p.Principal(context.Background(), mint(t, issuing, access.Principal{UserID: "alice"}))
	assert.False(t, got.Authenticated)
}

func TestPrincipal_EntitlementLookup(t *testing.T) {
	src := &stubEntitlements{has: true}
	p, _ := NewJWTProvider(secret, WithEntitlements(src, nil))

	got := p.Principal(context.Background(), mint(t, p, access.Principal{UserID: "alice"}))
	assert.True(t, got.HasAccess, "purchase recorded after token issue")
	assert.Equal(t, 1, src.n)

	p.Principal(context.Background(), mint(t, p, access.Principal{UserID: "alice", HasAccess: true}))
	assert.Equal(t, 1, src.n, "token claim short-circuits the lookup")

	p.Principal(context.Background(), "")
	assert.Equal(t, 1, src.n, "anonymous requests skip the lookup")
}

func TestPrincipal_EntitlementFailureKeepsTokenClaims(t *testing.T) {
	var failed shared.UserID
	src := &stubEntitlements{err: errors.New("db down")}
	p, _ := NewJWTProvider(secret, WithEntitlements(src, func(u shared.UserID, _ error) { failed = u }))

	got := p.Principal(context.Background(), mint(t, p, access.Principal{UserID: "bob"}))
	assert.True(t, got.Authenticated)
	assert.False(t, got.HasAccess)
	assert.Equal(t, shared.UserID("bob"), failed)
}

func TestMint_RejectsInvalidUser(t *testing.T) {
	p, _ := NewJWTProvider(secret)
	_, err := p.Mint(access.Principal{UserID: "a:b"})
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}
