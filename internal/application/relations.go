package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

type RelationOp string

const (
	RelationAdd    RelationOp = "add"
	RelationRemove RelationOp = "rem"
)

func ParseRelationOp(raw string) (RelationOp, bool) {
	switch RelationOp(raw) {
	case RelationAdd:
		return RelationAdd, true
	case RelationRemove, "remove":
		return RelationRemove, true
	}
	return "", false
}

// RelationSynchronizer is the single routine behind every relation endpoint.
// A link is one edge row, so writing it makes it visible from both sides at
// once.
type RelationSynchronizer struct{}

// Apply expects the owner to be loaded already. The related element must exist
// and be of the side's related kind.
func (RelationSynchronizer) Apply(ctx context.Context, tx domain.CatalogTx, side domain.RelationSide, op RelationOp, ownerID, relatedID uint) (bool, error) {
	if !domain.ValidID(relatedID) {
		return false, domain.NewError(domain.CodeNotAcceptable, fmt.Sprintf("%s element does not exist", side.Related))
	}
	if _, err := tx.FindElement(ctx, side.Related, relatedID); err != nil {
		if errors.Is(err, domain.ErrElementNotFound) {
			return false, domain.WrapError(domain.CodeNotAcceptable, fmt.Sprintf("%s element does not exist", side.Related), err)
		}
		return false, fmt.Errorf("load related %s %d: %w", side.Related, relatedID, err)
	}

	left, right := side.Orient(ownerID, relatedID)
	switch op {
	case RelationAdd:
		return tx.Link(ctx, side.Relation, left, right)
	case RelationRemove:
		return tx.Unlink(ctx, side.Relation, left, right)
	default:
		return false, domain.NewError(domain.CodeBadRequest, "unknown relation operation")
	}
}
