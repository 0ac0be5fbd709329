package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultJWTIssuer   = "messenger"
	defaultJWTAudience = "messenger-api"
	defaultJWTLeeway   = 30 * time.Second
	minJWTSecretLength = 32
)

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned for tokens revoked by logout.
	ErrTokenRevoked = errors.New("token revoked")
)

// JWTOptions configures claim validation. Zero values fall back to defaults.
type JWTOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
}

type sessionClaims struct {
	Handle        string `json:"handle"`
	HandleVersion int    `json:"hver"`
	jwt.RegisteredClaims
}

// JWTSessionStore issues HS256 tokens. Each token carries the handle and
// handle version it was issued for so callers can reject it after a rename. Logout is tracked per
// token id through the revoker.
type JWTSessionStore struct {
	secret  []byte
	ttl     time.Duration
	revoker TokenRevoker
	opts    JWTOptions
	parser  *jwt.Parser
	now     func() time.Time
}

// NewJWTSessionStore builds a session store signing with secret. A nil
// revoker disables logout.
func NewJWTSessionStore(secret string, ttl time.Duration, revoker TokenRevoker, opts JWTOptions) (*JWTSessionStore, error) {
	if len(secret) < minJWTSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minJWTSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	opts.Issuer = cmp.Or(strings.TrimSpace(opts.Issuer), defaultJWTIssuer)
	opts.Audience = cmp.Or(strings.TrimSpace(opts.Audience), defaultJWTAudience)
	if opts.Leeway <= 0 {
		opts.Leeway = defaultJWTLeeway
	}
	s := &JWTSessionStore{
		secret:  []byte(secret),
		ttl:     ttl,
		revoker: revoker,
		opts:    opts,
		now:     time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
		jwt.WithIssuer(opts.Issuer),
		jwt.WithAudience(opts.Audience),
	)
	return s, nil
}

// NewSession signs a token for userID under its current handle and handle version.
func (s *JWTSessionStore) NewSession(userID, handle string, handleVersion int) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("session subject required")
	}
	now := s.now().UTC()
	claims := sessionClaims{
		Handle:        handle,
		HandleVersion: handleVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.opts.Issuer,
			Audience:  jwt.ClaimStrings{s.opts.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// ParseSession verifies token and checks it has not been revoked.
func (s *JWTSessionStore) ParseSession(ctx context.Context, token string) (Session, error) {
	claims, err := s.verify(token)
	if err != nil {
		return Session{}, err
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Session{}, err
		}
		if revoked {
			return Session{}, ErrTokenRevoked
		}
	}
	return Session{
		UserID:        claims.Subject,
		Handle:        claims.Handle,
		HandleVersion: claims.HandleVersion,
		IssuedAt:      claims.IssuedAt.Time.UTC(),
	}, nil
}

// DeleteSession revokes token for the rest of its lifetime. Tokens that do
// not verify are already unusable and are ignored.
func (s *JWTSessionStore) DeleteSession(ctx context.Context, token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.verify(token)
	if err != nil {
		return nil
	}
	return s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.Sub(s.now()))
}

func (s *JWTSessionStore) verify(token string) (*sessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &sessionClaims{}
	if _, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	switch {
	case claims.ID == "":
		return nil, fmt.Errorf("%w: jti missing", ErrInvalidToken)
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	case claims.IssuedAt == nil:
		return nil, fmt.Errorf("%w: iat missing", ErrInvalidToken)
	}
	return claims, nil
}
