package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

func newTestManager(t *testing.T, now func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Issuer:   "sciencemap-test",
		Audience: "sciencemap-cli",
		Secret:   []byte("0123456789abcdef0123456789abcdef"),
		Lifetime: time.Hour,
		Now:      now,
	})
	require.NoError(t, err)
	return m
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, func() time.Time { return now })

	token, issued, err := m.Issue("admin", 7, []domain.Scope{domain.ScopeReader, domain.ScopeWriter})
	require.NoError(t, err)

	id, err := uuid.Parse(issued.JWTID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, []domain.Scope{domain.ScopeReader, domain.ScopeWriter}, claims.Scopes)
	assert.Equal(t, now.Add(time.Hour), claims.ExpiresAt)
}

func TestParseRejectsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, func() time.Time { return now })
	token, _, err := m.Issue("admin", 1, []domain.Scope{domain.ScopeReader})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = m.Parse(token)
	require.Error(t, err)
	assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err))
}

func TestParseRejectsForeignSecretAndAudience(t *testing.T) {
	m := newTestManager(t, nil)
	token, _, err := m.Issue("admin", 1, []domain.Scope{domain.ScopeReader})
	require.NoError(t, err)

	other, err := NewManager(Config{Issuer: "sciencemap-test", Audience: "sciencemap-cli", Secret: []byte("ffffffffffffffffffffffffffffffff")})
	require.NoError(t, err)
	_, err = other.Parse(token)
	assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err))

	wrongAudience, err := NewManager(Config{Issuer: "sciencemap-test", Audience: "someone-else", Secret: []byte("0123456789abcdef0123456789abcdef")})
	require.NoError(t, err)
	_, err = wrongAudience.Parse(token)
	assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err))

	_, err = m.Parse("not-a-token")
	assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err))
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(Config{Audience: "a", Secret: []byte("0123456789abcdef")})
	assert.Error(t, err)
	_, err = NewManager(Config{Issuer: "i", Audience: "a", Secret: []byte("short")})
	assert.Error(t, err)
}
