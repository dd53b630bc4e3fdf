package application

import (
	"fmt"
	"sort"
	"time"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

// ElementView is an element together with the ids it is linked to, keyed by
// collection name.
type ElementView struct {
	domain.Element
	Related map[string][]uint
}

// Project is the public shape of an element. The HTTP envelope renders it and
// the fingerprint hashes it, so the two can never drift apart.
func Project(view ElementView) map[string]any {
	out := map[string]any{
		"id":        view.ID,
		"name":      view.Name,
		"birthDate": formatDate(view.BirthDate),
		"deathDate": formatDate(view.DeathDate),
		"imageUrl":  optional(view.ImageURL),
		"wikiUrl":   optional(view.WikiURL),
	}
	if spec, ok := domain.SpecFor(view.Kind); ok && spec.HasWebsite {
		out["websiteUrl"] = view.WebsiteURL
	}
	for _, side := range domain.SidesOf(view.Kind) {
		ids := append([]uint{}, view.Related[side.Collection]...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out[side.Collection] = ids
	}
	return out
}

func Fingerprint(view ElementView) (string, error) {
	data, err := marshalCanonical(Project(view))
	if err != nil {
		return "", fmt.Errorf("fingerprint %s %d: %w", view.Kind, view.ID, err)
	}
	return hashWithDomain(elementHashDomain, data), nil
}

// CollectionFingerprint is order sensitive: the members are hashed as listed.
func CollectionFingerprint(views []ElementView) (string, error) {
	members := make([]any, 0, len(views))
	for _, view := range views {
		members = append(members, Project(view))
	}
	data, err := marshalCanonical(members)
	if err != nil {
		return "", fmt.Errorf("fingerprint collection: %w", err)
	}
	return hashWithDomain(collectionHashDomain, data), nil
}

func formatDate(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.Format(domain.DateLayout)
}

func optional(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
