package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

type relationRoutes struct {
	h    *Handler
	spec domain.KindSpec
	side domain.RelationSide
}

func (rr *relationRoutes) list(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeProblem(w, http.StatusNotFound, rr.spec.Singular+" not found")
		return
	}
	result, err := rr.h.catalog.ListRelated(r.Context(), rr.spec.Kind, id, rr.side.Collection,
		application.ParsePrecondition(r.Header.Values("If-None-Match")...))
	if err != nil {
		rr.h.writeError(w, err)
		return
	}
	writeCollection(w, rr.side.Collection, result)
}

func (rr *relationRoutes) apply(w http.ResponseWriter, r *http.Request) {
	op, ok := application.ParseRelationOp(chi.URLParam(r, "op"))
	if !ok {
		writeProblem(w, http.StatusNotFound, "unknown relation operation")
		return
	}
	ownerID, ok := pathID(r, "id")
	if !ok {
		writeProblem(w, http.StatusNotFound, rr.spec.Singular+" not found")
		return
	}
	// Zero is never a valid id, so the synchronizer rejects it as unacceptable.
	relatedID, _ := pathID(r, "elementId")

	result, err := rr.h.catalog.ApplyRelation(r.Context(), principalFromContext(r.Context()), application.RelationCommand{
		Owner:        rr.spec.Kind,
		OwnerID:      ownerID,
		Collection:   rr.side.Collection,
		Op:           op,
		RelatedID:    relatedID,
		Precondition: application.ParsePrecondition(r.Header.Values("If-Match")...),
	})
	if err != nil {
		rr.h.writeError(w, err)
		return
	}
	writeElement(w, StatusContentReturned, result)
}
