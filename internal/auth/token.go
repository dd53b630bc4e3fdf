package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

// Config defines how access tokens are signed and verified.
type Config struct {
	Issuer   string
	Audience string
	Secret   []byte
	Lifetime time.Duration
	Now      func() time.Time
}

// Claims are the validated contents of an access token.
type Claims struct {
	Subject   string
	UserID    uint
	Scopes    []domain.Scope
	JWTID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
	UserID uint     `json:"uid"`
	Scopes []string `json:"scopes"`
}

type Manager struct {
	cfg Config
}

func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("token issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("token audience is required")
	}
	if len(cfg.Secret) < 16 {
		return nil, errors.New("token secret must be at least 16 bytes")
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg}, nil
}

func (m *Manager) Lifetime() time.Duration {
	return m.cfg.Lifetime
}

func (m *Manager) Issue(subject string, userID uint, scopes []domain.Scope) (string, Claims, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", Claims{}, fmt.Errorf("generate token id: %w", err)
	}
	now := m.cfg.Now().UTC().Truncate(time.Second)
	exp := now.Add(m.cfg.Lifetime)

	raw := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		raw = append(raw, string(scope))
	}
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti.String(),
		},
		UserID: userID,
		Scopes: raw,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, Claims{
		Subject:   subject,
		UserID:    userID,
		Scopes:    append([]domain.Scope(nil), scopes...),
		JWTID:     jti.String(),
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Parse verifies signature, issuer, audience and lifetime.
func (m *Manager) Parse(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, domain.NewError(domain.CodeUnauthorized, "access token is required")
	}

	var parsed accessClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return m.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithAudience(m.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.cfg.Now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if parsed.UserID == 0 || parsed.Subject == "" {
		return Claims{}, domain.NewError(domain.CodeUnauthorized, "access token has no subject")
	}

	claims := Claims{
		Subject:   parsed.Subject,
		UserID:    parsed.UserID,
		JWTID:     parsed.ID,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	for _, scope := range parsed.Scopes {
		claims.Scopes = append(claims.Scopes, domain.Scope(scope))
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.WrapError(domain.CodeUnauthorized, "access token is expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return domain.WrapError(domain.CodeUnauthorized, "access token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return domain.WrapError(domain.CodeUnauthorized, "access token was issued for another service", err)
	default:
		return domain.WrapError(domain.CodeUnauthorized, "access token is invalid", err)
	}
}
