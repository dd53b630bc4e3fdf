package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

type Server struct {
	catalog  *application.CatalogService
	accounts *application.AccountService
	log      zerolog.Logger
	listener net.Listener
	path     string
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// elementParams is shared by every elements.* and relations.* method; each
// method reads the fields it needs.
type elementParams struct {
	Token      string         `json:"token"`
	Kind       string         `json:"kind"`
	ID         uint           `json:"id"`
	Q          string         `json:"q"`
	Limit      int            `json:"limit"`
	Fields     map[string]any `json:"fields"`
	ETag       string         `json:"etag"`
	Collection string         `json:"collection"`
	ElementID  uint           `json:"element_id"`
}

type elementResult struct {
	ETag    string         `json:"etag"`
	Element map[string]any `json:"element"`
}

type collectionResult struct {
	ETag     string           `json:"etag"`
	Elements []map[string]any `json:"elements"`
}

func Start(path string, catalog *application.CatalogService, accounts *application.AccountService, logger zerolog.Logger) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{catalog: catalog, accounts: accounts, log: logger, listener: ln, path: path}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}
	s.log.Debug().Str("method", req.Method).Msg("rpc call")

	switch req.Method {
	case "auth.login":
		return s.handleAuthLogin(ctx, req)
	case "audit.list":
		var p struct {
			Token string `json:"token"`
			Limit int    `json:"limit"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		principal, err := s.principal(ctx, p.Token)
		if err != nil {
			return s.appError(req.ID, err)
		}
		out, err := s.accounts.ListAuditLogs(ctx, principal, p.Limit)
		if err != nil {
			return s.appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: out, ID: req.ID}
	}

	var p elementParams
	if !decodeParams(req.Params, &p) {
		return invalidParams(req.ID)
	}
	spec, ok := kindSpec(p.Kind)
	if !ok {
		return invalidParams(req.ID)
	}

	switch req.Method {
	case "elements.list":
		out, err := s.catalog.List(ctx, spec.Kind, domain.ElementQuery{Query: p.Q, Limit: p.Limit}, application.Precondition{})
		if err != nil {
			return s.appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: collectionOf(out), ID: req.ID}
	case "elements.get":
		out, err := s.catalog.Get(ctx, spec.Kind, p.ID, application.Precondition{})
		if err != nil {
			return s.appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: elementOf(out), ID: req.ID}
	case "elements.create":
		principal, err := s.principal(ctx, p.Token)
		if err != nil {
			return s.appError(req.ID, err)
		}
		out, err := s.catalog.Create(ctx, principal, spec.Kind, fieldsOf(p))
		if err != nil {
			return s.appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: elementOf(out), ID: req.ID}
	case "elements.update":
		principal, err := s.principal(ctx, p.Token)
		if err != nil {
			return s.appError(req.ID, err)
		}
		out, err := s.catalog.Update(ctx, principal, spec.Kind, p.ID, application.ParsePrecondition(p.ETag), fieldsOf(p))
		if err != nil {
			return s.appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: elementOf(out), ID: req.ID}
	case "elements.delete":
		principal, err := s.principal(ctx, p.Token)
		if err != nil {
			return s.appError(req.ID, err)
		}
		if err := s.catalog.Delete(ctx, principal, spec.Kind, p.ID, application.ParsePrecondition(p.ETag)); err != nil {
			return s.appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"ok": true}, ID: req.ID}
	case "relations.list":
		out, err := s.catalog.ListRelated(ctx, spec.Kind, p.ID, p.Collection, application.Precondition{})
		if err != nil {
			return s.appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: collectionOf(out), ID: req.ID}
	case "relations.add", "relations.remove":
		principal, err := s.principal(ctx, p.Token)
		if err != nil {
			return s.appError(req.ID, err)
		}
		op := application.RelationAdd
		if req.Method == "relations.remove" {
			op = application.RelationRemove
		}
		out, err := s.catalog.ApplyRelation(ctx, principal, application.RelationCommand{
			Owner:        spec.Kind,
			OwnerID:      p.ID,
			Collection:   p.Collection,
			Op:           op,
			RelatedID:    p.ElementID,
			Precondition: application.ParsePrecondition(p.ETag),
		})
		if err != nil {
			return s.appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: elementOf(out), ID: req.ID}
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func (s *Server) handleAuthLogin(ctx context.Context, req request) response {
	var p struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Scope    string `json:"scope"`
	}
	if !decodeParams(req.Params, &p) {
		return invalidParams(req.ID)
	}
	token, err := s.accounts.Login(ctx, p.Username, p.Password, application.ParseScopes(p.Scope))
	if err != nil {
		return s.appError(req.ID, err)
	}
	return response{JSONRPC: "2.0", Result: token, ID: req.ID}
}

// principal returns nil for an empty token and lets the access policy reject
// the call.
func (s *Server) principal(ctx context.Context, token string) (*domain.Principal, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	return s.accounts.Authenticate(ctx, token)
}

func kindSpec(raw string) (domain.KindSpec, bool) {
	if spec, ok := domain.SpecFor(domain.Kind(raw)); ok {
		return spec, true
	}
	return domain.SpecForPlural(raw)
}

func fieldsOf(p elementParams) map[string]any {
	if p.Fields == nil {
		return map[string]any{}
	}
	return p.Fields
}

func elementOf(result application.ElementResult) elementResult {
	return elementResult{ETag: result.ETag, Element: application.Project(result.View)}
}

func collectionOf(result application.CollectionResult) collectionResult {
	out := collectionResult{ETag: result.ETag, Elements: make([]map[string]any, 0, len(result.Views))}
	for _, view := range result.Views {
		out.Elements = append(out.Elements, application.Project(view))
	}
	return out
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

// appError reuses the HTTP status of the domain code as the error code.
func (s *Server) appError(id any, err error) response {
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		s.log.Error().Err(err).Msg("rpc call failed")
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code.Status(), Message: domain.PublicMessage(err)}, ID: id}
}
