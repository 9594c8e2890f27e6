// Package service holds the finance core: merchant aggregation, statistics,
// the transaction save flow, categories and access-token handling.
package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	tokenTypeAccess = "access"
	tokenIssuer     = "finance-core"
)

// AuthService signs and verifies the HS256 access tokens that carry the user id.
// Sign-in itself belongs to the identity provider.
type AuthService struct {
	jwtSecret []byte
	accessTTL time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		now:       time.Now,
		logger:    logger,
	}
}

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub  string `json:"sub"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs a token for userID. Used by dev tooling and tests.
func (s *AuthService) IssueAccessToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", &domain.ErrValidation{Field: "userId", Message: "required"}
	}

	now := s.now()
	claims := JWTClaims{
		Sub:  userID,
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, expiry and token type.
func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		s.logger.Debug("access token rejected", zap.Error(err))
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != tokenTypeAccess {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	if claims.Sub == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	return claims, nil
}
