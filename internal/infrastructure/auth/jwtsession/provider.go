package jwtsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

type tokenKey struct{}

// WithToken stores the raw bearer token of the request in ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// BearerToken extracts the token of an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type Config struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

// Provider verifies HS256 session tokens issued by the identity service.
type Provider struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewProvider(cfg Config) (*Provider, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt session secret is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{secret: cfg.Secret, issuer: cfg.Issuer, now: now}, nil
}

// Session returns nil without error when the request carries no token.
func (p *Provider) Session(ctx context.Context) (*domain.AuthSession, error) {
	raw := tokenFrom(ctx)
	if raw == "" {
		return nil, nil
	}

	var claims jwt.RegisteredClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnauthorized, "verify session token", mapJWTError(err))
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "verify session token", errors.New("token has no subject"))
	}

	return &domain.AuthSession{
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// Issue signs a session token for userID. Used by local tooling and tests.
func (p *Provider) Issue(userID string, ttl time.Duration) (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.New("session token is expired")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.New("session token signature is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return errors.New("session token issuer mismatch")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errors.New("session token is malformed")
	default:
		return err
	}
}
