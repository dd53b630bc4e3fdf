package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

// kindRoutes serves one element kind under its plural path.
type kindRoutes struct {
	h    *Handler
	spec domain.KindSpec
}

func (k *kindRoutes) mount(r chi.Router) {
	r.Get("/", k.list)
	r.Options("/", allow("GET, HEAD, POST, OPTIONS"))
	r.With(k.h.requireAuth).Post("/", k.create)

	r.Get("/"+k.spec.Singular+"name/{name}", k.nameExists)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", k.get)
		r.Options("/", allow("GET, HEAD, PUT, DELETE, OPTIONS"))
		r.With(k.h.requireAuth).Put("/", k.update)
		r.With(k.h.requireAuth).Delete("/", k.delete)

		for _, side := range domain.SidesOf(k.spec.Kind) {
			rel := &relationRoutes{h: k.h, spec: k.spec, side: side}
			r.Get("/"+side.Collection, rel.list)
			r.Options("/"+side.Collection, allow("GET, HEAD, OPTIONS"))
			r.With(k.h.requireAuth).Put("/"+side.Collection+"/{op}/{elementId}", rel.apply)
			r.Options("/"+side.Collection+"/{op}/{elementId}", allow("PUT, OPTIONS"))
		}
	})
}

func allow(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (k *kindRoutes) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	query := domain.ElementQuery{Query: r.URL.Query().Get("q"), Limit: limit}

	result, err := k.h.catalog.List(r.Context(), k.spec.Kind, query, application.ParsePrecondition(r.Header.Values("If-None-Match")...))
	if err != nil {
		k.h.writeError(w, err)
		return
	}
	writeCollection(w, k.spec.Plural, result)
}

func (k *kindRoutes) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeProblem(w, http.StatusNotFound, k.spec.Singular+" not found")
		return
	}
	result, err := k.h.catalog.Get(r.Context(), k.spec.Kind, id, application.ParsePrecondition(r.Header.Values("If-None-Match")...))
	if err != nil {
		k.h.writeError(w, err)
		return
	}
	if result.NotModified {
		notModified(w, result.ETag)
		return
	}
	writeElement(w, http.StatusOK, result)
}

func (k *kindRoutes) nameExists(w http.ResponseWriter, r *http.Request) {
	if err := k.h.catalog.ExistsByName(r.Context(), k.spec.Kind, chi.URLParam(r, "name")); err != nil {
		k.h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (k *kindRoutes) create(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := k.h.catalog.Create(r.Context(), principalFromContext(r.Context()), k.spec.Kind, input)
	if err != nil {
		k.h.writeError(w, err)
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+strconv.FormatUint(uint64(result.View.ID), 10))
	writeElement(w, http.StatusCreated, result)
}

func (k *kindRoutes) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeProblem(w, http.StatusNotFound, k.spec.Singular+" not found")
		return
	}
	input, err := decodeInput(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := k.h.catalog.Update(r.Context(), principalFromContext(r.Context()), k.spec.Kind, id,
		application.ParsePrecondition(r.Header.Values("If-Match")...), input)
	if err != nil {
		k.h.writeError(w, err)
		return
	}
	writeElement(w, StatusContentReturned, result)
}

func (k *kindRoutes) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeProblem(w, http.StatusNotFound, k.spec.Singular+" not found")
		return
	}
	err := k.h.catalog.Delete(r.Context(), principalFromContext(r.Context()), k.spec.Kind, id,
		application.ParsePrecondition(r.Header.Values("If-Match")...))
	if err != nil {
		k.h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID rejects anything that is not a positive id within range.
func pathID(r *http.Request, param string) (uint, bool) {
	return domain.ParseID(chi.URLParam(r, param))
}

func writeElement(w http.ResponseWriter, status int, result application.ElementResult) {
	w.Header().Set("ETag", application.QuoteETag(result.ETag))
	writeJSON(w, status, application.Envelope(result.View))
}

func writeCollection(w http.ResponseWriter, key string, result application.CollectionResult) {
	if result.NotModified {
		notModified(w, result.ETag)
		return
	}
	members := make([]map[string]any, 0, len(result.Views))
	for _, view := range result.Views {
		members = append(members, application.Envelope(view))
	}
	w.Header().Set("ETag", application.QuoteETag(result.ETag))
	writeJSON(w, http.StatusOK, map[string]any{key: members})
}

func notModified(w http.ResponseWriter, etag string) {
	w.Header().Set("ETag", application.QuoteETag(etag))
	w.WriteHeader(http.StatusNotModified)
}
