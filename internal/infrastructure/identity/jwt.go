// Package identity turns bearer tokens into access.Principal snapshots.
//
// Tokens are HS256 JWTs issued by the authentication provider (or minted by
// the admin CLI for support). A missing or invalid token yields an anonymous
// principal; the caller never sees a token error.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wellness-escape/vitality-hub/internal/domain/access"
	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

var (
	// ErrNoSecret is returned when the provider is built without a signing key.
	ErrNoSecret = errors.New("identity: jwt secret is required")

	// ErrInvalidToken covers bad signatures, expiry and malformed claims.
	ErrInvalidToken = errors.New("identity: invalid token")
)

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Admin  bool   `json:"admin,omitempty"`
	Access bool   `json:"access,omitempty"`
}

// EntitlementSource reports purchase state that may be newer than the token.
type EntitlementSource interface {
	HasAccess(ctx context.Context, user shared.UserID) (bool, error)
}

// FailureHandler receives entitlement lookup failures.
type FailureHandler func(user shared.UserID, err error)

// JWTProvider verifies tokens and builds principals.
type JWTProvider struct {
	secret       []byte
	issuer       string
	ttl          time.Duration
	entitlements EntitlementSource
	onFail       FailureHandler
	now          func() time.Time
}

// Option configures a JWTProvider.
type Option func(*JWTProvider)

// WithIssuer requires and stamps the iss claim.
func WithIssuer(iss string) Option {
	return func(p *JWTProvider) { p.issuer = iss }
}

// WithTTL sets the lifetime of minted tokens.
func WithTTL(ttl time.Duration) Option {
	return func(p *JWTProvider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithEntitlements ORs a live entitlement lookup into HasAccess.
func WithEntitlements(src EntitlementSource, onFail FailureHandler) Option {
	return func(p *JWTProvider) {
		p.entitlements = src
		p.onFail = onFail
	}
}

// NewJWTProvider creates a provider for the given HMAC secret.
func NewJWTProvider(secret string, opts ...Option) (*JWTProvider, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	p := &JWTProvider{
		secret: []byte(secret),
		ttl:    24 * time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Parse verifies a raw token and returns its claims.
func (p *JWTProvider) Parse(raw string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !shared.UserID(claims.Subject).IsValid() {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return claims, nil
}

// Principal resolves a principal from an Authorization header value.
// Anything other than a valid bearer token is anonymous.
func (p *JWTProvider) Principal(ctx context.Context, authorization string) access.Principal {
	raw, ok := BearerToken(authorization)
	if !ok {
		return access.Anonymous
	}

	claims, err := p.Parse(raw)
	if err != nil {
		return access.Anonymous
	}

	principal := access.Principal{
		Authenticated: true,
		UserID:        shared.UserID(claims.Subject),
		DisplayName:   claims.Name,
		Email:         claims.Email,
		IsAdmin:       claims.Admin,
		HasAccess:     claims.Access,
	}

	if !principal.HasAccess && p.entitlements != nil {
		has, err := p.entitlements.HasAccess(ctx, principal.UserID)
		if err != nil {
			if p.onFail != nil {
				p.onFail(principal.UserID, err)
			}
		} else {
			principal.HasAccess = has
		}
	}

	return principal
}

// Mint signs a token for the given principal.
func (p *JWTProvider) Mint(principal access.Principal) (string, error) {
	if !principal.UserID.IsValid() {
		return "", shared.ErrInvalidUserID
	}
	now := p.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(principal.UserID),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
		Name:   principal.DisplayName,
		Email:  principal.Email,
		Admin:  principal.IsAdmin,
		Access: principal.HasAccess,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}
