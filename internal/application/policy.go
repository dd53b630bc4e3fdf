package application

import "github.com/atvirokodosprendimai/sciencemap/internal/domain"

type MutationClass int

const (
	MutationCreate MutationClass = iota
	MutationUpdate
	MutationDelete
	MutationRelation
)

func (c MutationClass) String() string {
	switch c {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	case MutationRelation:
		return "relation"
	default:
		return "unknown"
	}
}

type AccessPolicy struct{}

func (AccessPolicy) IsWriter(principal *domain.Principal) bool {
	return principal.HasScope(domain.ScopeWriter)
}

// Authorize denies readers asymmetrically: update and delete answer as if the
// element did not exist, create and relation changes are plainly forbidden.
func (a AccessPolicy) Authorize(principal *domain.Principal, class MutationClass) error {
	if principal == nil {
		return domain.NewError(domain.CodeUnauthorized, "authentication required")
	}
	if a.IsWriter(principal) {
		return nil
	}
	switch class {
	case MutationUpdate, MutationDelete:
		return domain.NewError(domain.CodeNotFound, "element not found")
	default:
		return domain.NewError(domain.CodeForbidden, "writer scope required")
	}
}
