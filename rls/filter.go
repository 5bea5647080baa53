package rls

import (
	"regexp"
	"sort"
	"strings"

	"schoolhub/authority"
	"schoolhub/bizerror"
	"schoolhub/policy"
	"schoolhub/session"

	"github.com/jinzhu/gorm"
)

var conditionColumnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var BuildFilterFunc = BuildFilter

// BuildFilter translates a resolved policy into the row filter every data
// access applies. The filter always pins the caller's tenant and excludes
// soft-deleted rows; the scope then narrows further. A denied read yields a
// filter matching zero rows, a denied write fails before the data layer.
func BuildFilter(resolved *authority.ResolvedPolicy, entity string, sec *session.Context, op Operation) (func(db *gorm.DB) *gorm.DB, error) {
	if sec == nil || sec.Identity.ID == 0 || sec.Identity.TenantID == 0 {
		return nil, bizerror.ErrUserContextMissing
	}

	emit := func(decision, reason string, scope authority.Scope) {
		policy.RecordAuditFunc(policy.AuditEvent{Resource: entity, Action: actionOf(op),
			UserID: sec.Identity.ID, TenantID: sec.Identity.TenantID,
			Decision: decision, Reason: reason, Scope: scope, Entity: entity, Operation: string(op)})
	}

	if resolved == nil || !resolved.Allowed {
		reason := authority.ReasonImplicitDeny
		if resolved != nil && resolved.Reason != "" {
			reason = resolved.Reason
		}
		emit("deny", reason, "")
		if op == OpRead {
			// no visible rows is a valid outcome on the read path
			return denyAllScope(sec), nil
		}
		if reason == authority.ReasonExplicitDeny {
			return nil, bizerror.ErrExplicitDeny
		}
		return nil, bizerror.ErrImplicitDeny
	}

	binding := bindingOf(entity)
	fragment := FilterFragment{}
	switch resolved.Scope {
	case authority.ScopeTenant:
		// tenant-wide: the base filter is already the whole restriction
	case authority.ScopeSelf:
		fragment = FilterFragment{Query: binding.OwnerColumn + " = ?", Args: []interface{}{sec.Identity.ID}}
	case authority.ScopeOwned:
		f, err := binding.Owned.Fragment(sec, op)
		if err != nil {
			return nil, err
		}
		fragment = f
	case authority.ScopeCustom:
		f, err := conditionFragment(resolved.Conditions, sec)
		if err != nil {
			return nil, err
		}
		fragment = f
	default:
		emit("deny", authority.ReasonUnknownScope, resolved.Scope)
		return nil, &bizerror.ErrUnknownScope{Scope: string(resolved.Scope)}
	}

	emit("allow", resolved.Reason, resolved.Scope)

	tenantId := sec.Identity.TenantID
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("tenant_id = ?", tenantId).Where("deleted_at IS NULL")
		if fragment.Query != "" {
			db = db.Where(fragment.Query, fragment.Args...)
		}
		return db
	}, nil
}

func denyAllScope(sec *session.Context) func(db *gorm.DB) *gorm.DB {
	tenantId := sec.Identity.TenantID
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantId).Where("deleted_at IS NULL").Where("1 = 0")
	}
}

// conditionFragment turns the condition sets of the contributing custom
// grants into (set1) OR (set2) ..., each set an AND of field equalities.
func conditionFragment(conditionSets []authority.ConditionSet, sec *session.Context) (FilterFragment, error) {
	var orParts []string
	var args []interface{}
	for _, set := range conditionSets {
		if set.IsVoid() {
			continue
		}
		columns := make([]string, 0, len(set))
		for column := range set {
			if !conditionColumnPattern.MatchString(column) {
				return FilterFragment{}, &bizerror.ErrBadParam{}
			}
			columns = append(columns, column)
		}
		sort.Strings(columns)

		andParts := make([]string, 0, len(columns))
		for _, column := range columns {
			andParts = append(andParts, column+" = ?")
			args = append(args, resolveConditionValue(set[column], sec))
		}
		orParts = append(orParts, "("+strings.Join(andParts, " AND ")+")")
	}
	if len(orParts) == 0 {
		return FilterFragment{Query: "1 = 0"}, nil
	}
	return FilterFragment{Query: "(" + strings.Join(orParts, " OR ") + ")", Args: args}, nil
}

// resolveConditionValue substitutes caller-context placeholders; anything else
// is a literal.
func resolveConditionValue(value string, sec *session.Context) interface{} {
	switch value {
	case "$userId":
		return sec.Identity.ID
	case "$tenantId":
		return sec.Identity.TenantID
	}
	return value
}

func actionOf(op Operation) authority.Action {
	switch op {
	case OpUpdate:
		return authority.ActionUpdate
	case OpDelete:
		return authority.ActionDelete
	}
	return authority.ActionRead
}
