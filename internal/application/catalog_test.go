package application_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/sciencemap/internal/adapters/db/sqlite"
	"github.com/atvirokodosprendimai/sciencemap/internal/adapters/db/store"
	"github.com/atvirokodosprendimai/sciencemap/internal/application"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

var (
	writer = &domain.Principal{Username: "curator", Scopes: domain.RoleWriter.Scopes()}
	reader = &domain.Principal{Username: "visitor", Scopes: domain.RoleReader.Scopes()}
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveMutation(kind domain.Kind, operation, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, string(kind)+"/"+operation+"/"+outcome)
}

func openStore(t *testing.T) *store.Repository {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog_test.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.RunMigrations(ctx, db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store.New(db, sqlite.Dialect())
}

func newCatalog(t *testing.T) (*application.CatalogService, *recordingObserver) {
	t.Helper()
	observer := &recordingObserver{}
	return application.NewCatalogService(openStore(t), application.WithObserver(observer)), observer
}

func mustCreate(t *testing.T, svc *application.CatalogService, kind domain.Kind, input map[string]any) application.ElementResult {
	t.Helper()
	res, err := svc.Create(context.Background(), writer, kind, input)
	require.NoError(t, err)
	return res
}

func codeOf(err error) domain.Code {
	return domain.CodeOf(err)
}

func TestAssociationEntityRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	foo := mustCreate(t, svc, domain.KindAssociation, map[string]any{"name": "Foo", "websiteUrl": "http://x"})
	bar := mustCreate(t, svc, domain.KindEntity, map[string]any{"name": "Bar"})
	before := foo.ETag

	added, err := svc.ApplyRelation(ctx, writer, application.RelationCommand{
		Owner: domain.KindAssociation, OwnerID: foo.View.ID, Collection: "entities", Op: application.RelationAdd, RelatedID: bar.View.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{bar.View.ID}, added.View.Related["entities"])
	assert.NotEqual(t, before, added.ETag)

	reverse, err := svc.Get(ctx, domain.KindEntity, bar.View.ID, application.Precondition{})
	require.NoError(t, err)
	assert.Equal(t, []uint{foo.View.ID}, reverse.View.Related["associations"])

	removed, err := svc.ApplyRelation(ctx, writer, application.RelationCommand{
		Owner: domain.KindAssociation, OwnerID: foo.View.ID, Collection: "entities", Op: application.RelationRemove, RelatedID: bar.View.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, removed.View.Related["entities"])
	assert.Equal(t, before, removed.ETag)

	reverse, err = svc.Get(ctx, domain.KindEntity, bar.View.ID, application.Precondition{})
	require.NoError(t, err)
	assert.Empty(t, reverse.View.Related["associations"])
}

func TestRelationsAreIdempotentAndSymmetric(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	for _, rel := range domain.Relations() {
		t.Run(rel.Key, func(t *testing.T) {
			left := mustCreate(t, svc, rel.Left, map[string]any{"name": "left-" + rel.Key, "websiteUrl": "http://l"})
			right := mustCreate(t, svc, rel.Right, map[string]any{"name": "right-" + rel.Key, "websiteUrl": "http://r"})
			cmd := application.RelationCommand{Owner: rel.Left, OwnerID: left.View.ID, Collection: rel.LeftCollection, Op: application.RelationAdd, RelatedID: right.View.ID}

			once, err := svc.ApplyRelation(ctx, writer, cmd)
			require.NoError(t, err)
			twice, err := svc.ApplyRelation(ctx, writer, cmd)
			require.NoError(t, err)
			assert.Equal(t, once.ETag, twice.ETag)
			assert.Equal(t, []uint{right.View.ID}, twice.View.Related[rel.LeftCollection])

			other, err := svc.Get(ctx, rel.Right, right.View.ID, application.Precondition{})
			require.NoError(t, err)
			assert.Equal(t, []uint{left.View.ID}, other.View.Related[rel.RightCollection])

			// Removing from the reciprocal side clears both.
			cmd = application.RelationCommand{Owner: rel.Right, OwnerID: right.View.ID, Collection: rel.RightCollection, Op: application.RelationRemove, RelatedID: left.View.ID}
			_, err = svc.ApplyRelation(ctx, writer, cmd)
			require.NoError(t, err)
			again, err := svc.ApplyRelation(ctx, writer, cmd)
			require.NoError(t, err)
			assert.Empty(t, again.View.Related[rel.RightCollection])

			mine, err := svc.Get(ctx, rel.Left, left.View.ID, application.Precondition{})
			require.NoError(t, err)
			assert.Empty(t, mine.View.Related[rel.LeftCollection])
		})
	}
}

func TestRelationRejectsMissingOrWrongKind(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	entity := mustCreate(t, svc, domain.KindEntity, map[string]any{"name": "CERN"})
	product := mustCreate(t, svc, domain.KindProduct, map[string]any{"name": "WWW"})

	_, err := svc.ApplyRelation(ctx, writer, application.RelationCommand{Owner: domain.KindEntity, OwnerID: entity.View.ID, Collection: "persons", Op: application.RelationAdd, RelatedID: 999})
	assert.Equal(t, domain.CodeNotAcceptable, codeOf(err))

	_, err = svc.ApplyRelation(ctx, writer, application.RelationCommand{Owner: domain.KindEntity, OwnerID: entity.View.ID, Collection: "persons", Op: application.RelationAdd, RelatedID: product.View.ID})
	assert.Equal(t, domain.CodeNotAcceptable, codeOf(err))

	_, err = svc.ApplyRelation(ctx, writer, application.RelationCommand{Owner: domain.KindEntity, OwnerID: 999, Collection: "persons", Op: application.RelationAdd, RelatedID: product.View.ID})
	assert.Equal(t, domain.CodeNotFound, codeOf(err))

	_, err = svc.ApplyRelation(ctx, writer, application.RelationCommand{Owner: domain.KindEntity, OwnerID: entity.View.ID, Collection: "persons", Op: application.RelationAdd, RelatedID: domain.MaxID + 1})
	assert.Equal(t, domain.CodeNotAcceptable, codeOf(err))

	got, err := svc.Get(ctx, domain.KindEntity, entity.View.ID, application.Precondition{})
	require.NoError(t, err)
	assert.Empty(t, got.View.Related["persons"])
}

func TestUpdateRequiresFreshFingerprint(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	created := mustCreate(t, svc, domain.KindPerson, map[string]any{"name": "Ada"})

	_, err := svc.Update(ctx, writer, domain.KindPerson, created.View.ID, application.Precondition{}, map[string]any{"name": "Ada L."})
	assert.Equal(t, domain.CodePreconditionRequired, codeOf(err))

	_, err = svc.Update(ctx, writer, domain.KindPerson, created.View.ID, application.ParsePrecondition(`"stale"`), map[string]any{"name": "Ada L."})
	assert.Equal(t, domain.CodePreconditionFailed, codeOf(err))

	unchanged, err := svc.Get(ctx, domain.KindPerson, created.View.ID, application.Precondition{})
	require.NoError(t, err)
	assert.Equal(t, "Ada", unchanged.View.Name)
	assert.Equal(t, created.ETag, unchanged.ETag)

	updated, err := svc.Update(ctx, writer, domain.KindPerson, created.View.ID, application.ParsePrecondition(application.QuoteETag(created.ETag)), map[string]any{"name": "Ada L.", "birthDate": "1815-12-10"})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.View.Name)
	require.NotNil(t, updated.View.BirthDate)
	assert.Equal(t, "1815-12-10", updated.View.BirthDate.Format(domain.DateLayout))
	assert.NotEqual(t, created.ETag, updated.ETag)

	// The old token is now stale.
	_, err = svc.Update(ctx, writer, domain.KindPerson, created.View.ID, application.ParsePrecondition(created.ETag), map[string]any{"name": "Lovelace"})
	assert.Equal(t, domain.CodePreconditionFailed, codeOf(err))
}

func TestUpdateIgnoresUnparseableDates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	created := mustCreate(t, svc, domain.KindPerson, map[string]any{"name": "Grace", "birthDate": "1906-12-09"})

	updated, err := svc.Update(ctx, writer, domain.KindPerson, created.View.ID, application.ParsePrecondition(created.ETag), map[string]any{"birthDate": "9th December", "unknown": "x"})
	require.NoError(t, err)
	require.NotNil(t, updated.View.BirthDate)
	assert.Equal(t, "1906-12-09", updated.View.BirthDate.Format(domain.DateLayout))
	assert.Equal(t, created.ETag, updated.ETag)
}

func TestNameCollisions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	a := mustCreate(t, svc, domain.KindEntity, map[string]any{"name": "A"})
	mustCreate(t, svc, domain.KindEntity, map[string]any{"name": "B"})

	_, err := svc.Create(ctx, writer, domain.KindEntity, map[string]any{"name": "A"})
	assert.Equal(t, domain.CodeBadRequest, codeOf(err))

	list, err := svc.List(ctx, domain.KindEntity, domain.ElementQuery{Query: "a"}, application.Precondition{})
	require.NoError(t, err)
	assert.Len(t, list.Views, 1)

	_, err = svc.Update(ctx, writer, domain.KindEntity, a.View.ID, application.ParsePrecondition(a.ETag), map[string]any{"name": "B"})
	assert.Equal(t, domain.CodeBadRequest, codeOf(err))

	same, err := svc.Update(ctx, writer, domain.KindEntity, a.View.ID, application.ParsePrecondition(a.ETag), map[string]any{"name": "A", "wikiUrl": "https://wiki/A"})
	require.NoError(t, err)
	assert.Equal(t, "A", same.View.Name)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, observer := newCatalog(t)

	_, err := svc.Create(ctx, writer, domain.KindAssociation, map[string]any{"name": "NoSite"})
	assert.Equal(t, domain.CodeUnprocessable, codeOf(err))

	_, err = svc.Create(ctx, writer, domain.KindEntity, map[string]any{"name": ""})
	assert.Equal(t, domain.CodeUnprocessable, codeOf(err))

	_, err = svc.Create(ctx, writer, domain.KindEntity, map[string]any{})
	assert.Equal(t, domain.CodeUnprocessable, codeOf(err))

	created, err := svc.Create(ctx, writer, domain.KindAssociation, map[string]any{"name": "ACM", "websiteUrl": "https://acm.org"})
	require.NoError(t, err)
	assert.Equal(t, "https://acm.org", created.View.WebsiteURL)
	assert.Contains(t, observer.outcomes, "association/create/ok")
	assert.Contains(t, observer.outcomes, "association/create/unprocessable_entity")
}

func TestAccessPolicyDenials(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	created := mustCreate(t, svc, domain.KindEntity, map[string]any{"name": "Bell Labs"})

	_, err := svc.Create(ctx, nil, domain.KindEntity, map[string]any{"name": "X"})
	assert.Equal(t, domain.CodeUnauthorized, codeOf(err))

	_, err = svc.Create(ctx, reader, domain.KindEntity, map[string]any{"name": "X"})
	assert.Equal(t, domain.CodeForbidden, codeOf(err))

	_, err = svc.Update(ctx, reader, domain.KindEntity, created.View.ID, application.ParsePrecondition(created.ETag), map[string]any{"name": "X"})
	assert.Equal(t, domain.CodeNotFound, codeOf(err))

	err = svc.Delete(ctx, reader, domain.KindEntity, created.View.ID, application.Precondition{})
	assert.Equal(t, domain.CodeNotFound, codeOf(err))

	_, err = svc.ApplyRelation(ctx, reader, application.RelationCommand{Owner: domain.KindEntity, OwnerID: created.View.ID, Collection: "persons", Op: application.RelationAdd, RelatedID: 1})
	assert.Equal(t, domain.CodeForbidden, codeOf(err))
}

func TestOutOfRangeIDsAreNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	mustCreate(t, svc, domain.KindProduct, map[string]any{"name": "Transistor"})

	for _, id := range []uint{0, domain.MaxID + 1} {
		_, err := svc.Get(ctx, domain.KindProduct, id, application.Precondition{})
		assert.Equal(t, domain.CodeNotFound, codeOf(err))
		_, err = svc.Update(ctx, writer, domain.KindProduct, id, application.ParsePrecondition("*"), map[string]any{"name": "Y"})
		assert.Equal(t, domain.CodeNotFound, codeOf(err))
		err = svc.Delete(ctx, writer, domain.KindProduct, id, application.Precondition{})
		assert.Equal(t, domain.CodeNotFound, codeOf(err))
	}
}

func TestDeleteStripsLinks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)
	entity := mustCreate(t, svc, domain.KindEntity, map[string]any{"name": "Xerox PARC"})
	product := mustCreate(t, svc, domain.KindProduct, map[string]any{"name": "Alto"})

	_, err := svc.ApplyRelation(ctx, writer, application.RelationCommand{Owner: domain.KindProduct, OwnerID: product.View.ID, Collection: "entities", Op: application.RelationAdd, RelatedID: entity.View.ID})
	require.NoError(t, err)

	err = svc.Delete(ctx, writer, domain.KindEntity, entity.View.ID, application.ParsePrecondition(`"stale"`))
	assert.Equal(t, domain.CodePreconditionFailed, codeOf(err))

	require.NoError(t, svc.Delete(ctx, writer, domain.KindEntity, entity.View.ID, application.Precondition{}))

	_, err = svc.Get(ctx, domain.KindEntity, entity.View.ID, application.Precondition{})
	assert.Equal(t, domain.CodeNotFound, codeOf(err))
	left, err := svc.Get(ctx, domain.KindProduct, product.View.ID, application.Precondition{})
	require.NoError(t, err)
	assert.Empty(t, left.View.Related["entities"])

	err = svc.Delete(ctx, writer, domain.KindEntity, entity.View.ID, application.Precondition{})
	assert.Equal(t, domain.CodeNotFound, codeOf(err))
}

func TestReadsHonourIfNoneMatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCatalog(t)

	_, err := svc.List(ctx, domain.KindPerson, domain.ElementQuery{}, application.Precondition{})
	assert.Equal(t, domain.CodeNotFound, codeOf(err))

	created := mustCreate(t, svc, domain.KindPerson, map[string]any{"name": "Turing"})
	got, err := svc.Get(ctx, domain.KindPerson, created.View.ID, application.ParsePrecondition(`W/"`+created.ETag+`"`))
	require.NoError(t, err)
	assert.True(t, got.NotModified)

	list, err := svc.List(ctx, domain.KindPerson, domain.ElementQuery{}, application.Precondition{})
	require.NoError(t, err)
	again, err := svc.List(ctx, domain.KindPerson, domain.ElementQuery{}, application.ParsePrecondition(list.ETag))
	require.NoError(t, err)
	assert.True(t, again.NotModified)

	assert.NoError(t, svc.ExistsByName(ctx, domain.KindPerson, "Turing"))
	assert.Equal(t, domain.CodeNotFound, codeOf(svc.ExistsByName(ctx, domain.KindPerson, "Church")))

	related, err := svc.ListRelated(ctx, domain.KindPerson, created.View.ID, "products", application.Precondition{})
	require.NoError(t, err)
	assert.Empty(t, related.Views)
	_, err = svc.ListRelated(ctx, domain.KindPerson, created.View.ID, "associations", application.Precondition{})
	assert.Equal(t, domain.CodeNotFound, codeOf(err))
}
