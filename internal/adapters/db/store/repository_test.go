package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/atvirokodosprendimai/sciencemap/internal/adapters/db/sqlite"
	"github.com/atvirokodosprendimai/sciencemap/internal/adapters/db/store"
	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

func openRepository(t *testing.T) *store.Repository {
	t.Helper()
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sciencemap_test.db")

	db, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return store.New(db, sqlite.Dialect())
}

func TestLinkIsVisibleFromBothSides(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	var entity, person domain.Element
	err := repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		var err error
		if entity, err = tx.CreateElement(ctx, domain.Element{Kind: domain.KindEntity, Name: "CERN"}); err != nil {
			return err
		}
		if person, err = tx.CreateElement(ctx, domain.Element{Kind: domain.KindPerson, Name: "Tim Berners-Lee"}); err != nil {
			return err
		}
		side, _ := domain.SideFor(domain.KindEntity, "persons")
		left, right := side.Orient(entity.ID, person.ID)
		created, err := tx.Link(ctx, side.Relation, left, right)
		if err != nil {
			return err
		}
		if !created {
			t.Fatalf("expected first link to be created")
		}
		created, err = tx.Link(ctx, side.Relation, left, right)
		if err != nil {
			return err
		}
		if created {
			t.Fatalf("expected duplicate link to be a no-op")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	fromEntity, _ := domain.SideFor(domain.KindEntity, "persons")
	fromPerson, _ := domain.SideFor(domain.KindPerson, "entities")

	ids, err := repo.RelatedIDs(ctx, fromEntity, entity.ID)
	if err != nil || len(ids) != 1 || ids[0] != person.ID {
		t.Fatalf("entity side: ids=%v err=%v", ids, err)
	}
	ids, err = repo.RelatedIDs(ctx, fromPerson, person.ID)
	if err != nil || len(ids) != 1 || ids[0] != entity.ID {
		t.Fatalf("person side: ids=%v err=%v", ids, err)
	}

	related, err := repo.ListRelated(ctx, fromPerson, person.ID)
	if err != nil {
		t.Fatalf("list related: %v", err)
	}
	if len(related) != 1 || related[0].Name != "CERN" {
		t.Fatalf("unexpected related elements: %+v", related)
	}
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)
	boom := errors.New("boom")

	err := repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		if _, err := tx.CreateElement(ctx, domain.Element{Kind: domain.KindProduct, Name: "World Wide Web"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repo.FindElementByName(ctx, domain.KindProduct, "World Wide Web"); !errors.Is(err, domain.ErrElementNotFound) {
		t.Fatalf("expected rolled back element to be absent, got %v", err)
	}
}

func TestDuplicateNameIsTranslated(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	err := repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		if _, err := tx.CreateElement(ctx, domain.Element{Kind: domain.KindEntity, Name: "IBM"}); err != nil {
			return err
		}
		_, err := tx.CreateElement(ctx, domain.Element{Kind: domain.KindEntity, Name: "IBM"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}

	// The same name under another kind is fine.
	err = repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		if _, err := tx.CreateElement(ctx, domain.Element{Kind: domain.KindEntity, Name: "IBM"}); err != nil {
			return err
		}
		_, err := tx.CreateElement(ctx, domain.Element{Kind: domain.KindProduct, Name: "IBM"})
		return err
	})
	if err != nil {
		t.Fatalf("expected cross-kind name reuse to succeed, got %v", err)
	}
}

func TestUnlinkAllAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	var assoc, entity domain.Element
	err := repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		var err error
		if assoc, err = tx.CreateElement(ctx, domain.Element{Kind: domain.KindAssociation, Name: "W3C", WebsiteURL: "https://w3.org"}); err != nil {
			return err
		}
		if entity, err = tx.CreateElement(ctx, domain.Element{Kind: domain.KindEntity, Name: "MIT"}); err != nil {
			return err
		}
		side, _ := domain.SideFor(domain.KindAssociation, "entities")
		left, right := side.Orient(assoc.ID, entity.ID)
		_, err = tx.Link(ctx, side.Relation, left, right)
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		removed, err := tx.UnlinkAll(ctx, domain.KindEntity, entity.ID)
		if err != nil {
			return err
		}
		if removed != 1 {
			t.Fatalf("expected one link removed, got %d", removed)
		}
		return tx.DeleteElement(ctx, domain.KindEntity, entity.ID)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	side, _ := domain.SideFor(domain.KindAssociation, "entities")
	ids, err := repo.RelatedIDs(ctx, side, assoc.ID)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected association to have no entities, ids=%v err=%v", ids, err)
	}
	if _, err := repo.FindElement(ctx, domain.KindEntity, entity.ID); !errors.Is(err, domain.ErrElementNotFound) {
		t.Fatalf("expected deleted entity to be gone, got %v", err)
	}
}

func TestFindElementChecksKind(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	var person domain.Element
	err := repo.WithinTx(ctx, func(tx domain.CatalogTx) error {
		var err error
		person, err = tx.CreateElement(ctx, domain.Element{Kind: domain.KindPerson, Name: "Ada Lovelace"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.FindElement(ctx, domain.KindEntity, person.ID); !errors.Is(err, domain.ErrElementNotFound) {
		t.Fatalf("expected wrong kind lookup to miss, got %v", err)
	}
}

func TestUsersAndAuditLogs(t *testing.T) {
	ctx := context.Background()
	repo := openRepository(t)

	user, err := repo.CreateUser(ctx, domain.User{Username: "curator", Email: "Curator@Example.org", PasswordHash: "x", Role: domain.RoleWriter})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Email != "curator@example.org" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if _, err := repo.CreateUser(ctx, domain.User{Username: "curator", Email: "other@example.org", PasswordHash: "x", Role: domain.RoleReader}); !errors.Is(err, domain.ErrDuplicateUser) {
		t.Fatalf("expected duplicate user, got %v", err)
	}

	if err := repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &user.ID, Action: "element.create", TargetKind: "entity", TargetID: 1}); err != nil {
		t.Fatalf("create audit log: %v", err)
	}
	records, err := repo.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(records) != 1 || records[0].ActorUsername != "curator" {
		t.Fatalf("unexpected audit records: %+v", records)
	}
}
