package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
	"github.com/atvirokodosprendimai/sciencemap/internal/observability"
)

// StatusContentReturned answers successful updates and relation changes.
const StatusContentReturned = 209

const APIPrefix = "/api/v1"

type contextKey string

const principalKey contextKey = "principal"

type Handler struct {
	catalog  *application.CatalogService
	accounts *application.AccountService
	log      zerolog.Logger
}

func NewRouter(catalog *application.CatalogService, accounts *application.AccountService, logger zerolog.Logger) http.Handler {
	h := &Handler{catalog: catalog, accounts: accounts, log: logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetrics)
	r.Use(middleware.GetHead)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route(APIPrefix, func(api chi.Router) {
		api.Post("/access_token", h.handleAccessToken)
		api.With(h.requireAuth).Get("/audit_logs", h.handleListAuditLogs)

		for _, spec := range domain.Kinds() {
			k := &kindRoutes{h: h, spec: spec}
			api.Route("/"+spec.Plural, k.mount)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type accessTokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Scope    string `json:"scope"`
}

func (h *Handler) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req := accessTokenRequest{
		Username: stringField(input, "username"),
		Password: stringField(input, "password"),
		Scope:    stringField(input, "scope"),
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeProblem(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	token, err := h.accounts.Login(r.Context(), req.Username, req.Password, application.ParseScopes(req.Scope))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Authorization", token.TokenType+" "+token.AccessToken)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.accounts.ListAuditLogs(r.Context(), principalFromContext(r.Context()), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": records})
}

// requireAuth only establishes who is calling; what they may do is decided by
// the catalog's access policy.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := h.authenticateRequest(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
	})
}

func (h *Handler) authenticateRequest(r *http.Request) (*domain.Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return nil, domain.NewError(domain.CodeUnauthorized, "bearer token required")
	}
	return h.accounts.Authenticate(r.Context(), strings.TrimSpace(authHeader[7:]))
}

func principalFromContext(ctx context.Context) *domain.Principal {
	principal, _ := ctx.Value(principalKey).(*domain.Principal)
	return principal
}

// decodeInput accepts JSON objects and url-encoded forms. An empty body is an
// empty input.
func decodeInput(r *http.Request) (map[string]any, error) {
	input := map[string]any{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				input[key] = values[0]
			}
		}
		return input, nil
	}

	err := json.NewDecoder(r.Body).Decode(&input)
	if errors.Is(err, io.EOF) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return input, nil
}

func stringField(input map[string]any, key string) string {
	value, _ := input[key].(string)
	return value
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := code.Status()
	if status >= 500 {
		h.log.Error().Err(err).Msg("request failed")
	}
	if code == domain.CodeUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="sciencemap"`)
	}
	writeProblem(w, status, domain.PublicMessage(err))
}

func writeProblem(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"code": status, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
