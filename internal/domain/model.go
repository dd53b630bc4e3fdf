package domain

import (
	"strconv"
	"time"
)

// MaxID is the largest identifier the catalog will ever look up.
const MaxID = 2147483647

const DateLayout = "2006-01-02"

type Kind string

const (
	KindEntity      Kind = "entity"
	KindAssociation Kind = "association"
	KindPerson      Kind = "person"
	KindProduct     Kind = "product"
)

type KindSpec struct {
	Kind       Kind
	Singular   string
	Plural     string
	Required   []string
	HasWebsite bool
}

var kindSpecs = []KindSpec{
	{Kind: KindEntity, Singular: "entity", Plural: "entities", Required: []string{"name"}},
	{Kind: KindAssociation, Singular: "association", Plural: "associations", Required: []string{"name", "websiteUrl"}, HasWebsite: true},
	{Kind: KindPerson, Singular: "person", Plural: "persons", Required: []string{"name"}},
	{Kind: KindProduct, Singular: "product", Plural: "products", Required: []string{"name"}},
}

func Kinds() []KindSpec {
	out := make([]KindSpec, len(kindSpecs))
	copy(out, kindSpecs)
	return out
}

func SpecFor(kind Kind) (KindSpec, bool) {
	for _, spec := range kindSpecs {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return KindSpec{}, false
}

func SpecForPlural(plural string) (KindSpec, bool) {
	for _, spec := range kindSpecs {
		if spec.Plural == plural {
			return spec, true
		}
	}
	return KindSpec{}, false
}

type Element struct {
	ID         uint
	Kind       Kind
	Name       string
	BirthDate  *time.Time
	DeathDate  *time.Time
	ImageURL   *string
	WikiURL    *string
	WebsiteURL string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Relation declares one many-to-many pair. Each link is stored once as
// (Key, left id, right id) and read from either side.
type Relation struct {
	Key             string
	Left            Kind
	LeftCollection  string
	Right           Kind
	RightCollection string
}

var relations = []Relation{
	{Key: "entity_person", Left: KindEntity, LeftCollection: "persons", Right: KindPerson, RightCollection: "entities"},
	{Key: "entity_product", Left: KindEntity, LeftCollection: "products", Right: KindProduct, RightCollection: "entities"},
	{Key: "association_entity", Left: KindAssociation, LeftCollection: "entities", Right: KindEntity, RightCollection: "associations"},
	{Key: "person_product", Left: KindPerson, LeftCollection: "products", Right: KindProduct, RightCollection: "persons"},
}

func Relations() []Relation {
	out := make([]Relation, len(relations))
	copy(out, relations)
	return out
}

type RelationSide struct {
	Relation   Relation
	Owner      Kind
	Collection string
	Related    Kind
	Reciprocal string
	OwnerLeft  bool
}

// Orient returns the (left, right) pair for a link seen from this side.
func (s RelationSide) Orient(ownerID, relatedID uint) (uint, uint) {
	if s.OwnerLeft {
		return ownerID, relatedID
	}
	return relatedID, ownerID
}

// SidesOf lists the collections an element of the given kind carries, in
// declaration order.
func SidesOf(kind Kind) []RelationSide {
	var out []RelationSide
	for _, rel := range relations {
		if rel.Left == kind {
			out = append(out, RelationSide{Relation: rel, Owner: kind, Collection: rel.LeftCollection, Related: rel.Right, Reciprocal: rel.RightCollection, OwnerLeft: true})
		}
		if rel.Right == kind {
			out = append(out, RelationSide{Relation: rel, Owner: kind, Collection: rel.RightCollection, Related: rel.Left, Reciprocal: rel.LeftCollection})
		}
	}
	return out
}

func SideFor(kind Kind, collection string) (RelationSide, bool) {
	for _, side := range SidesOf(kind) {
		if side.Collection == collection {
			return side, true
		}
	}
	return RelationSide{}, false
}

func ValidID(id uint) bool {
	return id >= 1 && id <= MaxID
}

// ParseID never fails loudly: anything outside [1, MaxID] reports false.
func ParseID(raw string) (uint, bool) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value < 1 || value > MaxID {
		return 0, false
	}
	return uint(value), true
}

type Scope string

const (
	ScopeReader Scope = "reader"
	ScopeWriter Scope = "writer"
)

type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
)

func (r Role) Scopes() []Scope {
	if r == RoleWriter {
		return []Scope{ScopeReader, ScopeWriter}
	}
	return []Scope{ScopeReader}
}

func (r Role) Valid() bool {
	return r == RoleReader || r == RoleWriter
}

type User struct {
	ID           uint
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Principal struct {
	UserID   uint
	Username string
	Scopes   []Scope
}

func (p *Principal) HasScope(scope Scope) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type AuditLog struct {
	ActorUserID *uint
	Action      string
	TargetKind  string
	TargetID    uint
	Metadata    string
}

type AuditRecord struct {
	ID            uint      `json:"id"`
	ActorUserID   *uint     `json:"actor_user_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	Action        string    `json:"action"`
	TargetKind    string    `json:"target_kind"`
	TargetID      uint      `json:"target_id"`
	Metadata      string    `json:"metadata"`
	CreatedAt     time.Time `json:"created_at"`
}

type ElementQuery struct {
	Query string
	Limit int
}
