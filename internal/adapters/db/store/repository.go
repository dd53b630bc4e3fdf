package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

// Dialect captures what differs between the databases the repository runs on.
type Dialect struct {
	Name              string
	LockRows          bool
	IsUniqueViolation func(error) bool
}

type reader struct {
	db        *gorm.DB
	dialect   Dialect
	forUpdate bool
}

type writer struct {
	reader
}

type Repository struct {
	reader
	writeMu *sync.Mutex
}

func New(db *gorm.DB, dialect Dialect) *Repository {
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	return &Repository{reader: reader{db: db, dialect: dialect}, writeMu: &sync.Mutex{}}
}

// WithinTx runs fn in one database transaction. Write transactions are
// serialized inside the process; on postgres the rows read through the
// transaction are also locked.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx domain.CatalogTx) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&writer{reader: reader{db: tx, dialect: r.dialect, forUpdate: r.dialect.LockRows}})
	})
}

func (r *reader) query(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	if r.forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (r *reader) FindElement(ctx context.Context, kind domain.Kind, id uint) (domain.Element, error) {
	var m ElementModel
	err := r.query(ctx).Where("kind = ? AND id = ?", string(kind), id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Element{}, domain.ErrElementNotFound
		}
		return domain.Element{}, err
	}
	return toElement(m), nil
}

func (r *reader) FindElementByName(ctx context.Context, kind domain.Kind, name string) (domain.Element, error) {
	var m ElementModel
	err := r.db.WithContext(ctx).Where("kind = ? AND name = ?", string(kind), name).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Element{}, domain.ErrElementNotFound
		}
		return domain.Element{}, err
	}
	return toElement(m), nil
}

// ListElements returns every match when query.Limit is zero.
func (r *reader) ListElements(ctx context.Context, kind domain.Kind, query domain.ElementQuery) ([]domain.Element, error) {
	q := r.db.WithContext(ctx).Model(&ElementModel{}).Where("kind = ?", string(kind))
	if term := strings.TrimSpace(query.Query); term != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(term)+"%")
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}
	models := make([]ElementModel, 0)
	if err := q.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return toElements(models), nil
}

func (r *reader) RelatedIDs(ctx context.Context, side domain.RelationSide, ownerID uint) ([]uint, error) {
	own, other := sideColumns(side)
	ids := make([]uint, 0)
	err := r.db.WithContext(ctx).Model(&LinkModel{}).
		Where("relation = ? AND "+own+" = ?", side.Relation.Key, ownerID).
		Order(other+" ASC").
		Pluck(other, &ids).Error
	return ids, err
}

func (r *reader) ListRelated(ctx context.Context, side domain.RelationSide, ownerID uint) ([]domain.Element, error) {
	own, other := sideColumns(side)
	linked := r.db.Model(&LinkModel{}).Select(other).Where("relation = ? AND "+own+" = ?", side.Relation.Key, ownerID)
	models := make([]ElementModel, 0)
	err := r.db.WithContext(ctx).
		Where("kind = ? AND id IN (?)", string(side.Related), linked).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toElements(models), nil
}

func (w *writer) CreateElement(ctx context.Context, value domain.Element) (domain.Element, error) {
	m := fromElement(value)
	m.ID = 0
	if err := w.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Element{}, w.translate(err, domain.ErrDuplicateName)
	}
	return toElement(m), nil
}

func (w *writer) SaveElement(ctx context.Context, value domain.Element) (domain.Element, error) {
	if value.ID == 0 {
		return domain.Element{}, domain.ErrElementNotFound
	}
	m := fromElement(value)
	res := w.db.WithContext(ctx).Model(&ElementModel{}).
		Where("id = ? AND kind = ?", m.ID, m.Kind).
		Updates(map[string]any{
			"name":        m.Name,
			"birth_date":  m.BirthDate,
			"death_date":  m.DeathDate,
			"image_url":   m.ImageURL,
			"wiki_url":    m.WikiURL,
			"website_url": m.WebsiteURL,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.Element{}, w.translate(res.Error, domain.ErrDuplicateName)
	}
	if res.RowsAffected == 0 {
		return domain.Element{}, domain.ErrElementNotFound
	}
	return w.FindElement(ctx, value.Kind, value.ID)
}

func (w *writer) DeleteElement(ctx context.Context, kind domain.Kind, id uint) error {
	res := w.db.WithContext(ctx).Where("kind = ?", string(kind)).Delete(&ElementModel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrElementNotFound
	}
	return nil
}

// Link reports whether a new edge row was written.
func (w *writer) Link(ctx context.Context, relation domain.Relation, leftID, rightID uint) (bool, error) {
	m := LinkModel{Relation: relation.Key, LeftID: leftID, RightID: rightID}
	res := w.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (w *writer) Unlink(ctx context.Context, relation domain.Relation, leftID, rightID uint) (bool, error) {
	res := w.db.WithContext(ctx).
		Where("relation = ? AND left_id = ? AND right_id = ?", relation.Key, leftID, rightID).
		Delete(&LinkModel{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UnlinkAll strips every link the element takes part in, from either side.
func (w *writer) UnlinkAll(ctx context.Context, kind domain.Kind, id uint) (int64, error) {
	var total int64
	for _, side := range domain.SidesOf(kind) {
		own, _ := sideColumns(side)
		res := w.db.WithContext(ctx).
			Where("relation = ? AND "+own+" = ?", side.Relation.Key, id).
			Delete(&LinkModel{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (w *writer) CreateAuditLog(ctx context.Context, value domain.AuditLog) error {
	return createAuditLog(ctx, w.db, value)
}

func (r *Repository) CreateAuditLog(ctx context.Context, value domain.AuditLog) error {
	return createAuditLog(ctx, r.db, value)
}

func (r *Repository) CreateUser(ctx context.Context, value domain.User) (domain.User, error) {
	m := UserModel{
		Username:     strings.TrimSpace(value.Username),
		Email:        strings.ToLower(strings.TrimSpace(value.Email)),
		PasswordHash: value.PasswordHash,
		Role:         string(value.Role),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.User{}, r.translate(err, domain.ErrDuplicateUser)
	}
	return toUser(m), nil
}

func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserModel{}).Count(&count).Error
	return count, err
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return toUser(m), nil
}

func (r *Repository) GetUserByID(ctx context.Context, id uint) (domain.User, error) {
	var m UserModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, err
	}
	return toUser(m), nil
}

func (r *Repository) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	type row struct {
		ID            uint
		ActorUserID   *uint
		ActorUsername string
		Action        string
		TargetKind    string
		TargetID      uint
		Metadata      string
		CreatedAt     time.Time
	}
	rows := make([]row, 0)
	err := r.db.WithContext(ctx).Raw(`
SELECT a.id,
       a.actor_user_id,
       COALESCE(u.username, '') AS actor_username,
       a.action,
       a.target_kind,
       a.target_id,
       a.metadata,
       a.created_at
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_user_id
ORDER BY a.id DESC
LIMIT ?
`, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.AuditRecord, 0, len(rows))
	for _, item := range rows {
		out = append(out, domain.AuditRecord{
			ID:            item.ID,
			ActorUserID:   item.ActorUserID,
			ActorUsername: item.ActorUsername,
			Action:        item.Action,
			TargetKind:    item.TargetKind,
			TargetID:      item.TargetID,
			Metadata:      item.Metadata,
			CreatedAt:     item.CreatedAt,
		})
	}
	return out, nil
}

func (r *reader) translate(err error, duplicate error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) || r.dialect.IsUniqueViolation(err) {
		return duplicate
	}
	return err
}

func createAuditLog(ctx context.Context, db *gorm.DB, value domain.AuditLog) error {
	m := AuditLogModel{
		ActorUserID: value.ActorUserID,
		Action:      value.Action,
		TargetKind:  value.TargetKind,
		TargetID:    value.TargetID,
		Metadata:    value.Metadata,
	}
	return db.WithContext(ctx).Create(&m).Error
}

// sideColumns names the column holding the owner and the one holding the
// related id for a side of a relation.
func sideColumns(side domain.RelationSide) (string, string) {
	if side.OwnerLeft {
		return "left_id", "right_id"
	}
	return "right_id", "left_id"
}

func toElement(m ElementModel) domain.Element {
	return domain.Element{
		ID:         m.ID,
		Kind:       domain.Kind(m.Kind),
		Name:       m.Name,
		BirthDate:  parseDate(m.BirthDate),
		DeathDate:  parseDate(m.DeathDate),
		ImageURL:   m.ImageURL,
		WikiURL:    m.WikiURL,
		WebsiteURL: m.WebsiteURL,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toElements(models []ElementModel) []domain.Element {
	out := make([]domain.Element, 0, len(models))
	for _, m := range models {
		out = append(out, toElement(m))
	}
	return out
}

func fromElement(e domain.Element) ElementModel {
	return ElementModel{
		ID:         e.ID,
		Kind:       string(e.Kind),
		Name:       e.Name,
		BirthDate:  formatDate(e.BirthDate),
		DeathDate:  formatDate(e.DeathDate),
		ImageURL:   e.ImageURL,
		WikiURL:    e.WikiURL,
		WebsiteURL: e.WebsiteURL,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func toUser(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func parseDate(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	parsed, err := time.Parse(domain.DateLayout, *value)
	if err != nil {
		return nil
	}
	return &parsed
}

func formatDate(value *time.Time) *string {
	if value == nil {
		return nil
	}
	s := value.Format(domain.DateLayout)
	return &s
}
