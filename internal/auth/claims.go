package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultAccessTTL applies when the issuer is configured with a zero TTL.
const defaultAccessTTL = 15 * time.Minute

// CustomClaims extends JWT standard claims with RemoteEye-specific fields.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role    Role `json:"role"`
	Refresh bool `json:"refresh,omitempty"`
}

// TokenIssuer mints and verifies tokens with a shared HS256 secret.
type TokenIssuer struct {
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer creates an issuer. A refreshTTL of zero issues refresh
// tokens without an expiry.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	return &TokenIssuer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// AccessTokenTTL returns the lifetime of access tokens.
func (i *TokenIssuer) AccessTokenTTL() time.Duration {
	return i.accessTTL
}

// GenerateAccessToken creates a signed access token for subject.
func (i *TokenIssuer) GenerateAccessToken(subject string, role Role) (string, error) {
	return i.sign(subject, role, i.accessTTL, false)
}

// GenerateRefreshToken creates a signed refresh token for subject.
// Refresh tokens can only be exchanged for access tokens.
func (i *TokenIssuer) GenerateRefreshToken(subject string, role Role) (string, error) {
	return i.sign(subject, role, i.refreshTTL, true)
}

func (i *TokenIssuer) sign(subject string, role Role, ttl time.Duration, refresh bool) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, role)
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
		Role:    role,
		Refresh: refresh,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyCredential checks an access token and returns its identity.
// Refresh tokens are rejected with ErrRefreshToken.
func (i *TokenIssuer) VerifyCredential(tokenString string) (*Identity, error) {
	id, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if id.Refresh {
		return nil, ErrRefreshToken
	}
	return id, nil
}

// VerifyRefresh checks a refresh token and returns its identity.
func (i *TokenIssuer) VerifyRefresh(tokenString string) (*Identity, error) {
	id, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if !id.Refresh {
		return nil, ErrNotRefreshToken
	}
	return id, nil
}

// Verify checks any token issued by i, access or refresh.
func (i *TokenIssuer) Verify(tokenString string) (*Identity, error) {
	claims, err := ParseToken(tokenString, i.secret)
	if err != nil {
		return nil, err
	}
	return claims.Identity(), nil
}

// IsRefreshToken reports whether tokenString is a valid refresh token.
func (i *TokenIssuer) IsRefreshToken(tokenString string) bool {
	id, err := i.Verify(tokenString)
	return err == nil && id.Refresh
}

// Identity converts parsed claims to an Identity.
func (c *CustomClaims) Identity() *Identity {
	id := &Identity{
		Subject: c.Subject,
		Role:    c.Role,
		Refresh: c.Refresh,
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		id.ExpiresAt = &exp
	}
	return id
}

// ParseToken validates and parses a JWT, returning the custom claims.
// It checks the signature, expiry when present, and required fields.
func ParseToken(tokenString, secret string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}
