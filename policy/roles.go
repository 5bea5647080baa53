package policy

import (
	"regexp"

	"schoolhub/authority"
	"schoolhub/bizerror"
	"schoolhub/idgen"
	"schoolhub/persistence"
	"schoolhub/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	roleIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	roleCodePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

	CreateRoleFunc = CreateRole
	UpdateRoleFunc = UpdateRole
	DeleteRoleFunc = DeleteRole
)

type RoleCreation struct {
	Name string `json:"name" binding:"required,lte=255"`
	Code string `json:"code" binding:"required,lte=64"`

	// System bypasses the tenant and creates a system-wide role. Only honored
	// for callers holding a grant on the roles resource without tenant binding.
	System bool `json:"system"`
}

type RoleUpdating struct {
	Name string `json:"name" binding:"required,lte=255"`
	Code string `json:"code" binding:"omitempty,lte=64"`
}

func CreateRole(c RoleCreation, sec *session.Context) (*authority.Role, error) {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionCreate); err != nil {
		return nil, err
	}
	if !roleCodePattern.MatchString(c.Code) {
		return nil, &bizerror.ErrBadParam{}
	}

	tenantId := sec.Identity.TenantID
	if c.System {
		tenantId = 0
	}
	r := authority.Role{ID: idgen.NextID(roleIdWorker), TenantID: tenantId, Name: c.Name,
		Code: authority.RoleCode(c.Code), IsSystemRole: tenantId == 0,
		CreateTime: types.CurrentTimestamp()}
	if err := persistence.ActiveDataSourceManager.GormDB().Create(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRole renames a role. The code is frozen at creation: any attempt to
// change it fails with ErrImmutableField.
func UpdateRole(id types.ID, u RoleUpdating, sec *session.Context) (*authority.Role, error) {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionUpdate); err != nil {
		return nil, err
	}

	r := authority.Role{}
	err := persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND (tenant_id = ? OR is_system_role = ?)",
			id, sec.Identity.TenantID, true).First(&r).Error; err != nil {
			return err
		}
		if u.Code != "" && authority.RoleCode(u.Code) != r.Code {
			return &bizerror.ErrImmutableField{Field: "code"}
		}
		if err := tx.Model(&r).Update("name", u.Name).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRole removes a role which no role assignment references any more.
func DeleteRole(id types.ID, sec *session.Context) error {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionDelete); err != nil {
		return err
	}

	return persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		r := authority.Role{}
		if err := tx.Where("id = ? AND (tenant_id = ? OR is_system_role = ?)",
			id, sec.Identity.TenantID, true).First(&r).Error; err != nil {
			return err
		}

		references := 0
		query := tx.Model(&authority.RoleAssignment{}).Where("role_code = ?", r.Code)
		if !r.IsSystemRole {
			query = query.Where("tenant_id = ?", r.TenantID)
		}
		if err := query.Count(&references).Error; err != nil {
			return err
		}
		if references > 0 {
			return &bizerror.ErrResourceInUse{Resource: "role", References: references}
		}

		if err := tx.Delete(authority.Role{}, "id = ?", r.ID).Error; err != nil {
			return err
		}
		return tx.Delete(authority.PolicyAssignment{}, "role_id = ?", r.ID).Error
	})
}

func QueryRoles(sec *session.Context) ([]authority.Role, error) {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionRead); err != nil {
		return nil, err
	}
	var roles []authority.Role
	db := persistence.ActiveDataSourceManager.GormDB()
	if err := db.Where("tenant_id = ? OR is_system_role = ?", sec.Identity.TenantID, true).
		Order("code").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}
