package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/atvirokodosprendimai/sciencemap/internal/auth"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

type TokenManager interface {
	Issue(subject string, userID uint, scopes []domain.Scope) (string, auth.Claims, error)
	Parse(token string) (auth.Claims, error)
	Lifetime() time.Duration
}

type AccessToken struct {
	TokenType   string         `json:"token_type"`
	ExpiresIn   int64          `json:"expires_in"`
	AccessToken string         `json:"access_token"`
	Scopes      []domain.Scope `json:"scopes"`
}

type AccountService struct {
	repo   domain.AccountRepository
	tokens TokenManager
	policy AccessPolicy
}

func NewAccountService(repo domain.AccountRepository, tokens TokenManager) *AccountService {
	return &AccountService{repo: repo, tokens: tokens}
}

// BootstrapWriter creates the first account when the user table is empty.
func (s *AccountService) BootstrapWriter(ctx context.Context, username, email, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return errors.New("bootstrap username and password are required")
	}
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = s.CreateUser(ctx, username, email, password, domain.RoleWriter)
	return err
}

func (s *AccountService) CreateUser(ctx context.Context, username, email, password string, role domain.Role) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.User{}, domain.NewError(domain.CodeUnprocessable, "username and password are required")
	}
	if !role.Valid() {
		return domain.User{}, domain.NewError(domain.CodeUnprocessable, fmt.Sprintf("unknown role %q", role))
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = username + "@localhost"
	}
	hash, err := hashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.CreateUser(ctx, domain.User{Username: username, Email: email, PasswordHash: hash, Role: role})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateUser) {
			return domain.User{}, domain.WrapError(domain.CodeBadRequest, "username or email already exists", err)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login awards the requested scopes the user's role allows; reader is always
// included and an empty request asks for everything.
func (s *AccountService) Login(ctx context.Context, username, password string, requested []domain.Scope) (AccessToken, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return AccessToken{}, domain.NewError(domain.CodeUnauthorized, "invalid credentials")
		}
		return AccessToken{}, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return AccessToken{}, domain.NewError(domain.CodeUnauthorized, "invalid credentials")
	}

	scopes := awardScopes(user.Role, requested)
	token, claims, err := s.tokens.Issue(user.Username, user.ID, scopes)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{
		TokenType:   "Bearer",
		ExpiresIn:   int64(claims.ExpiresAt.Sub(claims.IssuedAt).Seconds()),
		AccessToken: token,
		Scopes:      scopes,
	}, nil
}

func (s *AccountService) Authenticate(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NewError(domain.CodeUnauthorized, "access token user no longer exists")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	// A demoted user keeps only what the current role allows.
	return &domain.Principal{
		UserID:   user.ID,
		Username: user.Username,
		Scopes:   intersectScopes(claims.Scopes, user.Role.Scopes()),
	}, nil
}

func (s *AccountService) ListAuditLogs(ctx context.Context, principal *domain.Principal, limit int) ([]domain.AuditRecord, error) {
	if err := s.policy.Authorize(principal, MutationCreate); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func ParseScopes(raw string) []domain.Scope {
	var out []domain.Scope
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' || r == '+' }) {
		out = append(out, domain.Scope(strings.ToLower(part)))
	}
	return out
}

func awardScopes(role domain.Role, requested []domain.Scope) []domain.Scope {
	allowed := role.Scopes()
	if len(requested) == 0 {
		return allowed
	}
	want := append([]domain.Scope{domain.ScopeReader}, requested...)
	return intersectScopes(want, allowed)
}

// intersectScopes keeps the order of allowed and drops duplicates.
func intersectScopes(want, allowed []domain.Scope) []domain.Scope {
	set := make(map[domain.Scope]struct{}, len(want))
	for _, scope := range want {
		set[scope] = struct{}{}
	}
	out := make([]domain.Scope, 0, len(allowed))
	for _, scope := range allowed {
		if _, ok := set[scope]; ok {
			out = append(out, scope)
		}
	}
	return out
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
