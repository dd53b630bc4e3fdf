package application

import (
	"strings"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

// Precondition holds the entity tags a caller sent in If-Match or
// If-None-Match. An empty set means the header was absent.
type Precondition struct {
	Tags []string
}

func ParsePrecondition(headers ...string) Precondition {
	var tags []string
	for _, header := range headers {
		for _, part := range strings.Split(header, ",") {
			tag := strings.TrimSpace(part)
			tag = strings.TrimPrefix(tag, "W/")
			tag = strings.Trim(tag, `"`)
			if tag == "" {
				continue
			}
			tags = append(tags, tag)
		}
	}
	return Precondition{Tags: tags}
}

func (p Precondition) Present() bool {
	return len(p.Tags) > 0
}

func (p Precondition) Matches(current string) bool {
	for _, tag := range p.Tags {
		if tag == "*" || tag == current {
			return true
		}
	}
	return false
}

// requireFresh enforces If-Match on updates: no token at all is refused
// outright, a token that no longer matches is a lost update.
func requireFresh(p Precondition, current string) error {
	if !p.Present() {
		return domain.NewError(domain.CodePreconditionRequired, "If-Match header is required")
	}
	return checkFresh(p, current)
}

// checkFresh only applies when the caller supplied a token.
func checkFresh(p Precondition, current string) error {
	if p.Present() && !p.Matches(current) {
		return domain.NewError(domain.CodePreconditionFailed, "element was modified by another request")
	}
	return nil
}

// QuoteETag renders a strong entity tag for a header value.
func QuoteETag(tag string) string {
	return `"` + tag + `"`
}
