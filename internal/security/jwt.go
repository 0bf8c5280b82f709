package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/inspection-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "inspection-service"

// Claims represents JWT claims
type Claims struct {
	OwnerCode string `json:"code,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token operations
type JWTManager struct {
	secret         []byte
	accessTokenTTL time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, accessTTL time.Duration) *JWTManager {
	return &JWTManager{
		secret:         []byte(secret),
		accessTokenTTL: accessTTL,
	}
}

// Enabled reports whether a signing secret is configured
func (m *JWTManager) Enabled() bool {
	return len(m.secret) > 0
}

// GenerateAccessToken generates a new access token for a subject and owner code
func (m *JWTManager) GenerateAccessToken(subject, ownerCode string) (string, error) {
	if !m.Enabled() {
		return "", errors.New("jwt secret is not configured")
	}

	now := time.Now()
	claims := Claims{
		OwnerCode: ownerCode,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateAccessToken validates an access token and returns the claims
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	if !m.Enabled() {
		return nil, errors.New("jwt secret is not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// ResolveIdentity turns a bearer token into the caller identity
func (m *JWTManager) ResolveIdentity(tokenString string) (*domain.Identity, error) {
	claims, err := m.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &domain.Identity{
		Subject:   claims.Subject,
		OwnerCode: claims.OwnerCode,
	}, nil
}

// AccessTokenTTL returns the access token TTL
func (m *JWTManager) AccessTokenTTL() time.Duration {
	return m.accessTokenTTL
}
