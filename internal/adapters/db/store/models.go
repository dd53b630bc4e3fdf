package store

import "time"

type ElementModel struct {
	ID         uint    `gorm:"primaryKey"`
	Kind       string  `gorm:"not null;index:idx_elements_kind_name,unique"`
	Name       string  `gorm:"not null;index:idx_elements_kind_name,unique"`
	BirthDate  *string `gorm:"column:birth_date"`
	DeathDate  *string `gorm:"column:death_date"`
	ImageURL   *string `gorm:"column:image_url"`
	WikiURL    *string `gorm:"column:wiki_url"`
	WebsiteURL string  `gorm:"column:website_url;not null;default:''"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ElementModel) TableName() string { return "elements" }

// LinkModel is one undirected membership. Left and right follow the
// declaration order of the relation, not the side it was written from.
type LinkModel struct {
	ID        uint   `gorm:"primaryKey"`
	Relation  string `gorm:"not null;index:idx_element_links_edge,unique;index:idx_element_links_right"`
	LeftID    uint   `gorm:"not null;index:idx_element_links_edge,unique"`
	RightID   uint   `gorm:"not null;index:idx_element_links_edge,unique;index:idx_element_links_right"`
	CreatedAt time.Time
}

func (LinkModel) TableName() string { return "element_links" }

type UserModel struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"not null;uniqueIndex"`
	Email        string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;default:'reader'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type AuditLogModel struct {
	ID          uint `gorm:"primaryKey"`
	ActorUserID *uint
	Action      string `gorm:"not null;index"`
	TargetKind  string `gorm:"not null;index"`
	TargetID    uint
	Metadata    string
	CreatedAt   time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
