package domain

import "context"

type CatalogReader interface {
	FindElement(ctx context.Context, kind Kind, id uint) (Element, error)
	FindElementByName(ctx context.Context, kind Kind, name string) (Element, error)
	ListElements(ctx context.Context, kind Kind, query ElementQuery) ([]Element, error)
	RelatedIDs(ctx context.Context, side RelationSide, ownerID uint) ([]uint, error)
	ListRelated(ctx context.Context, side RelationSide, ownerID uint) ([]Element, error)
}

// CatalogTx is the write view handed to a transaction callback. Returning an
// error from the callback rolls every change back.
type CatalogTx interface {
	CatalogReader
	CreateElement(ctx context.Context, value Element) (Element, error)
	SaveElement(ctx context.Context, value Element) (Element, error)
	DeleteElement(ctx context.Context, kind Kind, id uint) error
	Link(ctx context.Context, relation Relation, leftID, rightID uint) (bool, error)
	Unlink(ctx context.Context, relation Relation, leftID, rightID uint) (bool, error)
	UnlinkAll(ctx context.Context, kind Kind, id uint) (int64, error)
	CreateAuditLog(ctx context.Context, value AuditLog) error
}

type CatalogRepository interface {
	CatalogReader
	WithinTx(ctx context.Context, fn func(tx CatalogTx) error) error
}

type AccountRepository interface {
	CreateUser(ctx context.Context, value User) (User, error)
	CountUsers(ctx context.Context) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id uint) (User, error)
	ListAuditLogs(ctx context.Context, limit int) ([]AuditRecord, error)
}
