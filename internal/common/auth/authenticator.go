package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	pkgerrors "officehours/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

// Identity is the verified caller behind a credential.
type Identity struct {
	UserID string
	Name   string
}

// Authenticator verifies HS256 access tokens issued by the identity provider.
type Authenticator struct {
	jwtSecret   []byte
	jwtIssuer   string
	revocations *RevocationList
	now         func() time.Time
}

// NewAuthenticator creates an authenticator; revocations may be nil.
func NewAuthenticator(jwtSecret, jwtIssuer string, revocations *RevocationList) *Authenticator {
	return &Authenticator{
		jwtSecret:   []byte(jwtSecret),
		jwtIssuer:   jwtIssuer,
		revocations: revocations,
		now:         time.Now,
	}
}

type tokenClaims struct {
	Name      string `json:"name"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Authenticate verifies raw and returns the identity it carries.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, err := a.parseToken(raw)
	if err != nil {
		return Identity{}, err
	}
	if a.revocations != nil {
		revoked, err := a.revocations.IsRevoked(ctx, HashToken(raw))
		if err != nil {
			return Identity{}, pkgerrors.Wrap(err, pkgerrors.ServiceUnavailable)
		}
		if revoked {
			return Identity{}, pkgerrors.New(pkgerrors.TokenInvalid).WithMessage("token has been revoked")
		}
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return Identity{UserID: claims.Subject, Name: name}, nil
}

// Revoke invalidates raw until its natural expiry.
func (a *Authenticator) Revoke(ctx context.Context, raw string) error {
	if a.revocations == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("token revocation is not configured")
	}
	claims, err := a.parseToken(raw)
	if err != nil {
		return err
	}
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(a.now())
	}
	if ttl <= 0 {
		return nil
	}
	if err := a.revocations.Revoke(ctx, HashToken(raw), ttl); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ServiceUnavailable)
	}
	return nil
}

// Mint issues an access token for identity. The queue service only verifies
// tokens; minting exists for the operator CLI and tests.
func Mint(secret, issuer string, identity Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is required")
	}
	if identity.UserID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := tokenClaims{
		Name:      identity.Name,
		TokenType: accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (a *Authenticator) parseToken(raw string) (*tokenClaims, error) {
	if len(a.jwtSecret) == 0 {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if a.jwtIssuer != "" && claims.Issuer != a.jwtIssuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != accessTokenType || claims.Subject == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

// HashToken returns the hex sha256 of raw, used as the revocation key.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
