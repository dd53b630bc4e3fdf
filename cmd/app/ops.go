package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

// elementReply is one element as both transports deliver it.
type elementReply struct {
	ETag    string         `json:"etag"`
	Element map[string]any `json:"element"`
}

type collectionReply struct {
	ETag     string           `json:"etag"`
	Elements []map[string]any `json:"elements"`
}

func doLogin(ctx context.Context, cfg cliConfig, username, password, scope string) (application.AccessToken, error) {
	var out application.AccessToken
	params := map[string]any{"username": username, "password": password, "scope": scope}
	if cfg.Transport == "uds" {
		return out, newRPCClient(cfg.Socket).call(ctx, "auth.login", params, &out)
	}
	_, err := newAPIClient(cfg.Server, "").request(ctx, http.MethodPost, "/api/v1/access_token", params, nil, &out)
	return out, err
}

func doElementsList(ctx context.Context, cfg cliConfig, spec domain.KindSpec, q string, limit int) ([]map[string]any, error) {
	var out collectionReply
	var err error
	if cfg.Transport == "uds" {
		err = newRPCClient(cfg.Socket).call(ctx, "elements.list", map[string]any{"kind": spec.Singular, "q": q, "limit": limit}, &out)
	} else {
		query := url.Values{}
		if q != "" {
			query.Set("q", q)
		}
		if limit > 0 {
			query.Set("limit", strconv.Itoa(limit))
		}
		path := "/api/v1/" + spec.Plural
		if len(query) > 0 {
			path += "?" + query.Encode()
		}
		out, err = getCollection(ctx, cfg, path)
	}
	// The server answers an empty collection with not found.
	if isRemoteStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	return out.Elements, err
}

func doElementGet(ctx context.Context, cfg cliConfig, spec domain.KindSpec, id uint) (elementReply, error) {
	if cfg.Transport == "uds" {
		var out elementReply
		err := newRPCClient(cfg.Socket).call(ctx, "elements.get", map[string]any{"kind": spec.Singular, "id": id}, &out)
		return out, err
	}
	return sendElement(ctx, cfg, http.MethodGet, elementPath(spec, id), nil, nil)
}

func doElementCreate(ctx context.Context, cfg cliConfig, spec domain.KindSpec, fields map[string]any) (elementReply, error) {
	if cfg.Transport == "uds" {
		var out elementReply
		err := newRPCClient(cfg.Socket).call(ctx, "elements.create", map[string]any{"token": cfg.Token, "kind": spec.Singular, "fields": fields}, &out)
		return out, err
	}
	return sendElement(ctx, cfg, http.MethodPost, "/api/v1/"+spec.Plural, fields, nil)
}

// doElementUpdate reads the current ETag first, so a concurrent edit surfaces
// as a failed precondition instead of being overwritten.
func doElementUpdate(ctx context.Context, cfg cliConfig, spec domain.KindSpec, id uint, fields map[string]any) (elementReply, error) {
	current, err := doElementGet(ctx, cfg, spec, id)
	if err != nil {
		return elementReply{}, err
	}
	if cfg.Transport == "uds" {
		var out elementReply
		err := newRPCClient(cfg.Socket).call(ctx, "elements.update", map[string]any{
			"token": cfg.Token, "kind": spec.Singular, "id": id, "etag": current.ETag, "fields": fields,
		}, &out)
		return out, err
	}
	return sendElement(ctx, cfg, http.MethodPut, elementPath(spec, id), fields, map[string]string{"If-Match": application.QuoteETag(current.ETag)})
}

func doElementDelete(ctx context.Context, cfg cliConfig, spec domain.KindSpec, id uint) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "elements.delete", map[string]any{"token": cfg.Token, "kind": spec.Singular, "id": id}, nil)
	}
	_, err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodDelete, elementPath(spec, id), nil, nil, nil)
	return err
}

func doRelationsList(ctx context.Context, cfg cliConfig, spec domain.KindSpec, id uint, collection string) ([]map[string]any, error) {
	if cfg.Transport == "uds" {
		var out collectionReply
		err := newRPCClient(cfg.Socket).call(ctx, "relations.list", map[string]any{"kind": spec.Singular, "id": id, "collection": collection}, &out)
		return out.Elements, err
	}
	out, err := getCollection(ctx, cfg, elementPath(spec, id)+"/"+url.PathEscape(collection))
	return out.Elements, err
}

func doRelationApply(ctx context.Context, cfg cliConfig, spec domain.KindSpec, id uint, collection string, op application.RelationOp, elementID uint) (elementReply, error) {
	if cfg.Transport == "uds" {
		method := "relations.add"
		if op == application.RelationRemove {
			method = "relations.remove"
		}
		var out elementReply
		err := newRPCClient(cfg.Socket).call(ctx, method, map[string]any{
			"token": cfg.Token, "kind": spec.Singular, "id": id, "collection": collection, "element_id": elementID,
		}, &out)
		return out, err
	}
	path := elementPath(spec, id) + "/" + url.PathEscape(collection) + "/" + string(op) + "/" + strconv.FormatUint(uint64(elementID), 10)
	return sendElement(ctx, cfg, http.MethodPut, path, nil, nil)
}

func doAuditList(ctx context.Context, cfg cliConfig, limit int) ([]domain.AuditRecord, error) {
	if cfg.Transport == "uds" {
		var out []domain.AuditRecord
		err := newRPCClient(cfg.Socket).call(ctx, "audit.list", map[string]any{"token": cfg.Token, "limit": limit}, &out)
		return out, err
	}
	var out struct {
		AuditLogs []domain.AuditRecord `json:"audit_logs"`
	}
	_, err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodGet, "/api/v1/audit_logs?limit="+strconv.Itoa(limit), nil, nil, &out)
	return out.AuditLogs, err
}

func elementPath(spec domain.KindSpec, id uint) string {
	return "/api/v1/" + spec.Plural + "/" + strconv.FormatUint(uint64(id), 10)
}

// sendElement unwraps the {"<singular>": {...}} envelope.
func sendElement(ctx context.Context, cfg cliConfig, method, path string, in any, headers map[string]string) (elementReply, error) {
	var envelope map[string]map[string]any
	header, err := newAPIClient(cfg.Server, cfg.Token).request(ctx, method, path, in, headers, &envelope)
	if err != nil {
		return elementReply{}, err
	}
	out := elementReply{ETag: unquoteETag(header.Get("ETag"))}
	for _, member := range envelope {
		out.Element = member
	}
	return out, nil
}

// getCollection unwraps {"<plural>": [{"<singular>": {...}}, ...]}.
func getCollection(ctx context.Context, cfg cliConfig, path string) (collectionReply, error) {
	var envelope map[string][]map[string]map[string]any
	header, err := newAPIClient(cfg.Server, cfg.Token).request(ctx, http.MethodGet, path, nil, nil, &envelope)
	if err != nil {
		return collectionReply{}, err
	}
	out := collectionReply{ETag: unquoteETag(header.Get("ETag")), Elements: []map[string]any{}}
	for _, members := range envelope {
		for _, member := range members {
			for _, element := range member {
				out.Elements = append(out.Elements, element)
			}
		}
	}
	return out, nil
}

func unquoteETag(value string) string {
	if unquoted, err := strconv.Unquote(value); err == nil {
		return unquoted
	}
	return value
}
