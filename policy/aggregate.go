package policy

import (
	"schoolhub/authority"
	"schoolhub/bizerror"
	"schoolhub/persistence"
	"schoolhub/session"

	"github.com/jinzhu/gorm"
)

var (
	AuthorizeFunc     = Authorize
	ResolvePolicyFunc = ResolvePolicy
)

// Authorize is the request-gating check: it resolves the policy for the
// caller on (resource, action) and translates a deny into the matching error.
// Route guards and write paths call this before any handler logic runs.
func Authorize(sec *session.Context, resource string, action authority.Action) (*authority.ResolvedPolicy, error) {
	if sec == nil || sec.Identity.ID == 0 || sec.Identity.TenantID == 0 {
		return nil, bizerror.ErrUserContextMissing
	}
	resolved, err := ResolvePolicyFunc(sec.Roles, sec.Identity, resource, action)
	if err != nil {
		return nil, err
	}
	if !resolved.Allowed {
		if resolved.Reason == authority.ReasonExplicitDeny {
			return resolved, bizerror.ErrExplicitDeny
		}
		return resolved, bizerror.ErrImplicitDeny
	}
	return resolved, nil
}

// ResolveFor resolves the policy without turning a deny into an error. Read
// paths use it: a denied read becomes an empty result set downstream.
func ResolveFor(sec *session.Context, resource string, action authority.Action) (*authority.ResolvedPolicy, error) {
	if sec == nil || sec.Identity.ID == 0 || sec.Identity.TenantID == 0 {
		return nil, bizerror.ErrUserContextMissing
	}
	return ResolvePolicyFunc(sec.Roles, sec.Identity, resource, action)
}

// ResolvePolicy computes one decision for (resource, action) from all policy
// assignments held by the caller's roles:
//
//  1. roles match by code within the caller's tenant, system roles included;
//     a tenant role sharing a code with a system role contributes both.
//  2. any deny assignment wins over every allow.
//  3. no allow assignment at all is an implicit deny.
//  4. otherwise the widest granted scope wins (self < owned < tenant);
//     custom grants with empty conditions are void, and custom is only
//     selected when no ranked scope is granted.
//
// Every resolution emits exactly one audit event.
func ResolvePolicy(roleCodes authority.Codes, identity session.Identity, resource string, action authority.Action) (*authority.ResolvedPolicy, error) {
	decide := func(resolved authority.ResolvedPolicy) *authority.ResolvedPolicy {
		decision := "deny"
		if resolved.Allowed {
			decision = "allow"
		}
		RecordAuditFunc(AuditEvent{Resource: resource, Action: action, UserID: identity.ID,
			TenantID: identity.TenantID, Decision: decision, Reason: resolved.Reason, Scope: resolved.Scope})
		return &resolved
	}

	if len(roleCodes) == 0 {
		return decide(authority.ResolvedPolicy{Allowed: false, Reason: authority.ReasonImplicitDeny}), nil
	}

	db := persistence.ActiveDataSourceManager.GormDB()

	var roles []authority.Role
	if err := db.Where("code IN (?) AND (tenant_id = ? OR is_system_role = ?)",
		roleCodes, identity.TenantID, true).Find(&roles).Error; err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return decide(authority.ResolvedPolicy{Allowed: false, Reason: authority.ReasonImplicitDeny}), nil
	}

	// a (resource, action) outside the catalog simply matches no assignment;
	// catalog validation is the caller layer's concern
	perm, err := FindPermission(db, resource, action)
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return decide(authority.ResolvedPolicy{Allowed: false, Reason: authority.ReasonImplicitDeny}), nil
		}
		return nil, err
	}

	roleIds := make([]interface{}, 0, len(roles))
	for _, role := range roles {
		roleIds = append(roleIds, role.ID)
	}
	var assignments []authority.PolicyAssignment
	if err := db.Where("role_id IN (?) AND permission_id = ?", roleIds, perm.ID).
		Find(&assignments).Error; err != nil {
		return nil, err
	}

	for _, a := range assignments {
		if a.Effect == authority.EffectDeny {
			return decide(authority.ResolvedPolicy{Allowed: false, Reason: authority.ReasonExplicitDeny}), nil
		}
	}

	bestRank := 0
	bestScope := authority.Scope("")
	var customConditions []authority.ConditionSet
	for _, a := range assignments {
		if a.Effect != authority.EffectAllow {
			continue
		}
		if !a.Scope.Known() {
			RecordAuditFunc(AuditEvent{Resource: resource, Action: action, UserID: identity.ID,
				TenantID: identity.TenantID, Decision: "deny", Reason: authority.ReasonUnknownScope,
				Scope: a.Scope})
			return nil, &bizerror.ErrUnknownScope{Scope: string(a.Scope)}
		}
		if a.Scope == authority.ScopeCustom {
			if a.Conditions.IsVoid() {
				// void grant, equivalent to no grant at all
				continue
			}
			customConditions = append(customConditions, a.Conditions)
			continue
		}
		if a.Scope.Rank() > bestRank {
			bestRank = a.Scope.Rank()
			bestScope = a.Scope
		}
	}

	if bestRank > 0 {
		return decide(authority.ResolvedPolicy{Allowed: true, Scope: bestScope, Reason: authority.ReasonAllow}), nil
	}
	if len(customConditions) > 0 {
		return decide(authority.ResolvedPolicy{Allowed: true, Scope: authority.ScopeCustom,
			Conditions: customConditions, Reason: authority.ReasonAllow}), nil
	}
	return decide(authority.ResolvedPolicy{Allowed: false, Reason: authority.ReasonImplicitDeny}), nil
}
