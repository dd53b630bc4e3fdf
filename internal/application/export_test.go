package application_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

type memoryBlobs struct {
	objects map[string][]byte
}

func (m *memoryBlobs) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = body
	return "mem://" + key, nil
}

func TestExportWritesEnvelopesPerKind(t *testing.T) {
	ctx := context.Background()
	repo := openStore(t)
	catalog := application.NewCatalogService(repo)
	exporter := application.NewExportService(repo, catalog)

	entity, err := catalog.Create(ctx, writer, domain.KindEntity, map[string]any{"name": "Bletchley Park"})
	require.NoError(t, err)
	person, err := catalog.Create(ctx, writer, domain.KindPerson, map[string]any{"name": "Alan Turing"})
	require.NoError(t, err)
	_, err = catalog.ApplyRelation(ctx, writer, application.RelationCommand{
		Owner: domain.KindPerson, OwnerID: person.View.ID, Collection: "entities", Op: application.RelationAdd, RelatedID: entity.View.ID,
	})
	require.NoError(t, err)

	blobs := &memoryBlobs{}
	location, err := exporter.Export(ctx, blobs, "snapshot.json")
	require.NoError(t, err)
	assert.Equal(t, "mem://snapshot.json", location)

	var decoded struct {
		Entities []struct {
			Entity struct {
				Name    string `json:"name"`
				Persons []uint `json:"persons"`
			} `json:"entity"`
		} `json:"entities"`
		Associations []json.RawMessage `json:"associations"`
		ExportedAt   string            `json:"exportedAt"`
	}
	require.NoError(t, json.Unmarshal(blobs.objects["snapshot.json"], &decoded))
	require.Len(t, decoded.Entities, 1)
	assert.Equal(t, "Bletchley Park", decoded.Entities[0].Entity.Name)
	assert.Equal(t, []uint{person.View.ID}, decoded.Entities[0].Entity.Persons)
	assert.NotNil(t, decoded.Associations)
	assert.Empty(t, decoded.Associations)
	assert.NotEmpty(t, decoded.ExportedAt)
}
