package application

import (
	"strings"
	"time"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

type FieldApplier func(element *domain.Element, value any)

// KindStrategy carries everything that differs between element kinds. The
// pipeline itself is shared.
type KindStrategy struct {
	Spec   domain.KindSpec
	Fields map[string]FieldApplier
}

func DefaultStrategies() map[domain.Kind]KindStrategy {
	out := make(map[domain.Kind]KindStrategy)
	for _, spec := range domain.Kinds() {
		fields := map[string]FieldApplier{
			"name":      applyName,
			"birthDate": applyDate(func(e *domain.Element) **time.Time { return &e.BirthDate }),
			"deathDate": applyDate(func(e *domain.Element) **time.Time { return &e.DeathDate }),
			"imageUrl":  applyOptional(func(e *domain.Element) **string { return &e.ImageURL }),
			"wikiUrl":   applyOptional(func(e *domain.Element) **string { return &e.WikiURL }),
		}
		if spec.HasWebsite {
			fields["websiteUrl"] = applyWebsite
		}
		out[spec.Kind] = KindStrategy{Spec: spec, Fields: fields}
	}
	return out
}

func (s KindStrategy) missingRequired(input map[string]any) []string {
	var missing []string
	for _, field := range s.Spec.Required {
		value, ok := input[field]
		if !ok || value == nil {
			missing = append(missing, field)
			continue
		}
		if field == "name" {
			if name, ok := value.(string); !ok || strings.TrimSpace(name) == "" {
				missing = append(missing, field)
			}
		}
	}
	return missing
}

// Apply copies only the fields present in input. Unknown keys are ignored.
func (s KindStrategy) Apply(element *domain.Element, input map[string]any) {
	for key, value := range input {
		if apply, ok := s.Fields[key]; ok {
			apply(element, value)
		}
	}
}

// requestedName reports the name carried by input, if any.
func requestedName(input map[string]any) (string, bool, error) {
	value, ok := input["name"]
	if !ok {
		return "", false, nil
	}
	name, isString := value.(string)
	if !isString || strings.TrimSpace(name) == "" {
		return "", true, domain.NewError(domain.CodeUnprocessable, "name must be a non-empty string")
	}
	return name, true, nil
}

func applyName(element *domain.Element, value any) {
	if name, ok := value.(string); ok && strings.TrimSpace(name) != "" {
		element.Name = name
	}
}

func applyWebsite(element *domain.Element, value any) {
	if url, ok := value.(string); ok {
		element.WebsiteURL = url
	}
}

// Unparseable dates keep the previous value.
func applyDate(field func(*domain.Element) **time.Time) FieldApplier {
	return func(element *domain.Element, value any) {
		raw, ok := value.(string)
		if !ok {
			return
		}
		parsed, err := time.Parse(domain.DateLayout, strings.TrimSpace(raw))
		if err != nil {
			return
		}
		*field(element) = &parsed
	}
}

func applyOptional(field func(*domain.Element) **string) FieldApplier {
	return func(element *domain.Element, value any) {
		switch v := value.(type) {
		case nil:
			*field(element) = nil
		case string:
			s := v
			*field(element) = &s
		}
	}
}
