package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Config configures shared-secret token verification.
type HS256Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Leeway   time.Duration
}

// HS256Verifier validates tokens signed with a shared HMAC secret.
type HS256Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewHS256Verifier builds a verifier that accepts only HS256 signatures.
func NewHS256Verifier(cfg HS256Config) (*HS256Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &HS256Verifier{secret: cfg.Secret, parser: jwt.NewParser(opts...)}, nil
}

// Verify implements TokenVerifier.
func (v *HS256Verifier) Verify(_ context.Context, token string) (map[string]interface{}, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return map[string]interface{}(claims), nil
}
