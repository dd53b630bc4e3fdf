package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

type BlobWriter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type Snapshot struct {
	ExportedAt time.Time
	Kinds      map[domain.Kind][]ElementView
}

// MarshalJSON renders every kind under its plural tag, each member wrapped in
// the same envelope the HTTP API serves.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := map[string]any{"exportedAt": s.ExportedAt.UTC().Format(time.RFC3339)}
	for _, spec := range domain.Kinds() {
		members := make([]map[string]any, 0, len(s.Kinds[spec.Kind]))
		for _, view := range s.Kinds[spec.Kind] {
			members = append(members, Envelope(view))
		}
		out[spec.Plural] = members
	}
	return json.Marshal(out)
}

func Envelope(view ElementView) map[string]any {
	spec, _ := domain.SpecFor(view.Kind)
	return map[string]any{spec.Singular: Project(view)}
}

type ExportService struct {
	repo    domain.CatalogRepository
	catalog *CatalogService
	now     func() time.Time
}

func NewExportService(repo domain.CatalogRepository, catalog *CatalogService) *ExportService {
	return &ExportService{repo: repo, catalog: catalog, now: time.Now}
}

func (s *ExportService) Snapshot(ctx context.Context) (Snapshot, error) {
	ctx, span := tracer.Start(ctx, "catalog.snapshot")
	defer span.End()

	snapshot := Snapshot{ExportedAt: s.now(), Kinds: map[domain.Kind][]ElementView{}}
	for _, spec := range domain.Kinds() {
		elements, err := s.repo.ListElements(ctx, spec.Kind, domain.ElementQuery{})
		if err != nil {
			return Snapshot{}, fmt.Errorf("list %s: %w", spec.Kind, err)
		}
		views := make([]ElementView, 0, len(elements))
		for _, element := range elements {
			view, err := s.catalog.viewOf(ctx, s.repo, element)
			if err != nil {
				return Snapshot{}, err
			}
			views = append(views, view)
		}
		snapshot.Kinds[spec.Kind] = views
	}
	return snapshot, nil
}

// Export writes the snapshot under key and returns where it landed.
func (s *ExportService) Export(ctx context.Context, writer BlobWriter, key string) (string, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if key == "" {
		key = "sciencemap-" + snapshot.ExportedAt.UTC().Format("20060102T150405Z") + ".json"
	}
	location, err := writer.Put(ctx, key, buf.Bytes(), "application/json")
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return location, nil
}
