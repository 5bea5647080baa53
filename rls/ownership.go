package rls

import (
	"schoolhub/session"
)

type Operation string

const (
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// FilterFragment is one SQL predicate with its arguments, composable into the
// final row filter.
type FilterFragment struct {
	Query string
	Args  []interface{}
}

// OwnershipRule maps the "owned" scope onto rows for one entity type.
// Ownership differs per entity (a teacher owns the students of their classes,
// a parent owns linked students), so each entity registers its own rule.
type OwnershipRule interface {
	Fragment(sec *session.Context, op Operation) (FilterFragment, error)
}

// OwnerColumnRule is the fallback ownership rule: the row's owning-user
// reference equals the caller.
type OwnerColumnRule struct {
	Column string
}

func (r OwnerColumnRule) Fragment(sec *session.Context, op Operation) (FilterFragment, error) {
	return FilterFragment{Query: r.Column + " = ?", Args: []interface{}{sec.Identity.ID}}, nil
}

// EntityBinding declares how one entity type participates in row-level
// security: which column holds the owning-user reference, and the rule behind
// the "owned" scope. Owned defaults to the owner column.
type EntityBinding struct {
	Entity      string
	OwnerColumn string
	Owned       OwnershipRule
}

var bindings = map[string]EntityBinding{}

func RegisterEntity(b EntityBinding) {
	if b.OwnerColumn == "" {
		b.OwnerColumn = "owner_id"
	}
	if b.Owned == nil {
		b.Owned = OwnerColumnRule{Column: b.OwnerColumn}
	}
	bindings[b.Entity] = b
}

func bindingOf(entity string) EntityBinding {
	if b, found := bindings[entity]; found {
		return b
	}
	return EntityBinding{Entity: entity, OwnerColumn: "owner_id", Owned: OwnerColumnRule{Column: "owner_id"}}
}
