package policy

import (
	"encoding/json"
	"fmt"
	"time"

	"schoolhub/authority"
	"schoolhub/common"
	"schoolhub/idgen"
	"schoolhub/persistence"
	"schoolhub/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

const RoleCacheExpiration = 10 * time.Minute

// Cache is the optional externally-hosted key-value store backing role
// resolution. All calls are best-effort: an error is logged and treated as a
// miss, never surfaced as a resolution failure.
type Cache interface {
	Get(key string) (string, bool, error)
	SetWithTTL(key, value string, ttl time.Duration) error
	Delete(key string) error
}

// RoleResolver computes the current role codes of a (user, tenant) pair from
// the source of truth, optionally short-circuited by the cache. Constructed
// once at startup; a nil cache disables caching entirely.
type RoleResolver struct {
	Cache Cache
	TTL   time.Duration
}

func NewRoleResolver(cache Cache) *RoleResolver {
	return &RoleResolver{Cache: cache, TTL: RoleCacheExpiration}
}

var Resolver = NewRoleResolver(nil)

var ResolveRolesFunc = ResolveRoles

func ResolveRoles(userId, tenantId types.ID) (authority.Codes, error) {
	return Resolver.ResolveRoles(userId, tenantId)
}

// UserActiveCheckFunc reports whether the user exists and is active within the
// tenant. Wired by the account package; a missing or deactivated user resolves
// to an empty role set rather than an error, so auditing is never halted.
var UserActiveCheckFunc func(userId, tenantId types.ID) (bool, error)

func RoleCacheKey(userId, tenantId types.ID) string {
	return fmt.Sprintf("perms:%s:%s:roles", userId.String(), tenantId.String())
}

func (r *RoleResolver) ResolveRoles(userId, tenantId types.ID) (authority.Codes, error) {
	if r.Cache != nil {
		raw, found, err := r.Cache.Get(RoleCacheKey(userId, tenantId))
		if err != nil {
			common.Log.Warnf("role cache lookup failed, fall through to database: %v", err)
		} else if found {
			var codes authority.Codes
			if err := json.Unmarshal([]byte(raw), &codes); err != nil {
				common.Log.Warnf("role cache entry is corrupt, fall through to database: %v", err)
			} else {
				return codes, nil
			}
		}
	}

	codes, err := loadRoleCodes(userId, tenantId)
	if err != nil {
		return nil, err
	}

	if r.Cache != nil && len(codes) > 0 {
		raw, err := json.Marshal(codes)
		if err == nil {
			if err := r.Cache.SetWithTTL(RoleCacheKey(userId, tenantId), string(raw), r.TTL); err != nil {
				common.Log.Warnf("role cache population failed: %v", err)
			}
		}
	}
	return codes, nil
}

// Invalidate drops the cached role set. Every role-membership mutation calls
// this synchronously before reporting success, so a revoked role never stays
// effective behind the mutation.
func (r *RoleResolver) Invalidate(userId, tenantId types.ID) error {
	if r.Cache == nil {
		return nil
	}
	return r.Cache.Delete(RoleCacheKey(userId, tenantId))
}

func loadRoleCodes(userId, tenantId types.ID) (authority.Codes, error) {
	if UserActiveCheckFunc != nil {
		active, err := UserActiveCheckFunc(userId, tenantId)
		if err != nil {
			return nil, err
		}
		if !active {
			return authority.Codes{}, nil
		}
	}

	var rows []authority.RoleAssignment
	db := persistence.ActiveDataSourceManager.GormDB()
	err := db.Model(&authority.RoleAssignment{}).
		Joins("JOIN roles ON roles.code = role_assignments.role_code AND (roles.tenant_id = ? OR roles.is_system_role = ?)", tenantId, true).
		Where("role_assignments.user_id = ? AND (role_assignments.tenant_id = ? OR role_assignments.tenant_id = 0)", userId, tenantId).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	codes := authority.Codes{}
	for _, row := range rows {
		if !codes.Has(row.RoleCode) {
			codes = append(codes, row.RoleCode)
		}
	}
	return codes, nil
}

var (
	AssignRoleFunc = AssignRole
	RemoveRoleFunc = RemoveRole
)

// AssignRole grants a role to a user within the caller's tenant. The cached
// role set is invalidated before the call returns.
func AssignRole(userId types.ID, code authority.RoleCode, sec *session.Context) error {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionUpdate); err != nil {
		return err
	}
	tenantId := sec.Identity.TenantID

	err := persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		role := authority.Role{}
		if err := tx.Where("code = ? AND (tenant_id = ? OR is_system_role = ?)",
			code, tenantId, true).First(&role).Error; err != nil {
			return err
		}

		assignmentTenant := tenantId
		if role.IsSystemRole {
			assignmentTenant = 0
		}
		existing := authority.RoleAssignment{}
		err := tx.Where("user_id = ? AND tenant_id = ? AND role_code = ?",
			userId, assignmentTenant, code).First(&existing).Error
		if err == nil {
			return nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		assignment := authority.RoleAssignment{ID: idgen.NextID(roleIdWorker), UserID: userId,
			TenantID: assignmentTenant, RoleCode: code, CreateTime: types.CurrentTimestamp()}
		return tx.Create(&assignment).Error
	})
	if err != nil {
		return err
	}
	return Resolver.Invalidate(userId, tenantId)
}

// RemoveRole revokes a role from a user. Idempotent; the cached role set is
// invalidated before the call returns.
func RemoveRole(userId types.ID, code authority.RoleCode, sec *session.Context) error {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionUpdate); err != nil {
		return err
	}
	tenantId := sec.Identity.TenantID

	err := persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		return tx.Delete(authority.RoleAssignment{},
			"user_id = ? AND role_code = ? AND (tenant_id = ? OR tenant_id = 0)",
			userId, code, tenantId).Error
	})
	if err != nil {
		return err
	}
	return Resolver.Invalidate(userId, tenantId)
}
