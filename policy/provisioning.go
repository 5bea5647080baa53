package policy

import (
	"schoolhub/authority"
	"schoolhub/idgen"
	"schoolhub/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

const (
	RoleSuperAdmin  authority.RoleCode = "SUPER_ADMIN"
	RoleSchoolAdmin authority.RoleCode = "SCHOOL_ADMIN"
	RoleTeacher     authority.RoleCode = "TEACHER"
	RoleStaff       authority.RoleCode = "STAFF"
	RoleParent      authority.RoleCode = "PARENT"
)

type defaultGrant struct {
	resource string
	action   authority.Action
	scope    authority.Scope
}

var defaultRoleNames = map[authority.RoleCode]string{
	RoleSchoolAdmin: "School Administrator",
	RoleTeacher:     "Teacher",
	RoleStaff:       "Staff",
	RoleParent:      "Parent",
}

var defaultRoleGrants = map[authority.RoleCode][]defaultGrant{
	RoleSchoolAdmin: allResourceGrants(authority.ScopeTenant),
	RoleTeacher: {
		{"students", authority.ActionRead, authority.ScopeOwned},
		{"students", authority.ActionUpdate, authority.ScopeOwned},
		{"classes", authority.ActionRead, authority.ScopeTenant},
		{"attendance_staff", authority.ActionRead, authority.ScopeSelf},
	},
	RoleStaff: {
		{"staff", authority.ActionRead, authority.ScopeSelf},
		{"staff", authority.ActionUpdate, authority.ScopeSelf},
		{"attendance_staff", authority.ActionRead, authority.ScopeSelf},
	},
	RoleParent: {
		{"students", authority.ActionRead, authority.ScopeOwned},
		{"fees", authority.ActionRead, authority.ScopeOwned},
	},
}

func allResourceGrants(scope authority.Scope) []defaultGrant {
	var grants []defaultGrant
	for _, resource := range DefaultResources {
		for _, action := range AllActions {
			grants = append(grants, defaultGrant{resource, action, scope})
		}
	}
	return grants
}

// ProvisionTenantDefaults seeds the permission catalog, the default role set
// and their policies for a fresh tenant. Safe to call repeatedly; existing
// roles and assignments are left untouched.
func ProvisionTenantDefaults(tenantId types.ID) error {
	return persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		if err := SeedPermissions(tx); err != nil {
			return err
		}
		for code, name := range defaultRoleNames {
			role, err := ensureRole(tx, tenantId, code, name)
			if err != nil {
				return err
			}
			for _, grant := range defaultRoleGrants[code] {
				perm, err := FindPermission(tx, grant.resource, grant.action)
				if err != nil {
					return err
				}
				if err := ensureAssignment(tx, role.ID, perm.ID, authority.EffectAllow, grant.scope, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ProvisionSystemDefaults seeds the system-wide super admin role holding a
// tenant-scope allow on every catalog entry.
func ProvisionSystemDefaults() error {
	return persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		if err := SeedPermissions(tx); err != nil {
			return err
		}
		role, err := ensureRole(tx, 0, RoleSuperAdmin, "System Administrator")
		if err != nil {
			return err
		}
		for _, grant := range allResourceGrants(authority.ScopeTenant) {
			perm, err := FindPermission(tx, grant.resource, grant.action)
			if err != nil {
				return err
			}
			if err := ensureAssignment(tx, role.ID, perm.ID, authority.EffectAllow, grant.scope, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureRole(tx *gorm.DB, tenantId types.ID, code authority.RoleCode, name string) (*authority.Role, error) {
	role := authority.Role{}
	err := tx.Where("tenant_id = ? AND code = ?", tenantId, code).First(&role).Error
	if err == nil {
		return &role, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}
	role = authority.Role{ID: idgen.NextID(roleIdWorker), TenantID: tenantId, Name: name, Code: code,
		IsSystemRole: tenantId == 0, CreateTime: types.CurrentTimestamp()}
	if err := tx.Create(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func ensureAssignment(tx *gorm.DB, roleId, permissionId types.ID, effect authority.Effect,
	scope authority.Scope, conditions authority.ConditionSet) error {
	existing := authority.PolicyAssignment{}
	err := tx.Where("role_id = ? AND permission_id = ?", roleId, permissionId).First(&existing).Error
	if err == nil {
		return nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return err
	}
	assignment := authority.PolicyAssignment{ID: idgen.NextID(policyIdWorker), RoleID: roleId,
		PermissionID: permissionId, Effect: effect, Scope: scope, Conditions: conditions,
		CreateTime: types.CurrentTimestamp()}
	return tx.Create(&assignment).Error
}
