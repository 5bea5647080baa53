package policy

import (
	"errors"

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
	policyIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	UpsertPolicyAssignmentFunc = UpsertPolicyAssignment
	DeletePolicyAssignmentFunc = DeletePolicyAssignment
)

type PolicyAssignmentChange struct {
	RoleID   types.ID         `json:"roleId" binding:"required"`
	Resource string           `json:"resource" binding:"required"`
	Action   authority.Action `json:"action" binding:"required"`

	Effect     authority.Effect       `json:"effect" binding:"required"`
	Scope      authority.Scope        `json:"scope"`
	Conditions authority.ConditionSet `json:"conditions"`
}

// UpsertPolicyAssignment creates or replaces the single assignment a role may
// hold per permission. The whole change is one transaction; a partially
// applied policy change is never observable.
func UpsertPolicyAssignment(ch PolicyAssignmentChange, sec *session.Context) (*authority.PolicyAssignment, error) {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionUpdate); err != nil {
		return nil, err
	}
	if ch.Effect != authority.EffectAllow && ch.Effect != authority.EffectDeny {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("unknown effect " + string(ch.Effect))}
	}
	if ch.Effect == authority.EffectAllow && !ch.Scope.Known() {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("unknown scope " + string(ch.Scope))}
	}

	assignment := authority.PolicyAssignment{}
	err := persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		role := authority.Role{}
		if err := tx.Where("id = ? AND (tenant_id = ? OR is_system_role = ?)",
			ch.RoleID, sec.Identity.TenantID, true).First(&role).Error; err != nil {
			return err
		}
		perm, err := FindPermission(tx, ch.Resource, ch.Action)
		if err != nil {
			return err
		}

		scope := ch.Scope
		var conditions authority.ConditionSet
		if ch.Effect == authority.EffectDeny {
			// a deny never contributes a scope
			scope = ""
		} else if scope == authority.ScopeCustom {
			conditions = ch.Conditions
		}

		err = tx.Where("role_id = ? AND permission_id = ?", role.ID, perm.ID).First(&assignment).Error
		if gorm.IsRecordNotFoundError(err) {
			assignment = authority.PolicyAssignment{ID: idgen.NextID(policyIdWorker), RoleID: role.ID,
				PermissionID: perm.ID, Effect: ch.Effect, Scope: scope, Conditions: conditions,
				CreateTime: types.CurrentTimestamp()}
			return tx.Create(&assignment).Error
		}
		if err != nil {
			return err
		}
		assignment.Effect = ch.Effect
		assignment.Scope = scope
		assignment.Conditions = conditions
		return tx.Save(&assignment).Error
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// DeletePolicyAssignment removes the assignment of a role on one permission.
// Deleting an absent assignment is a no-op.
func DeletePolicyAssignment(roleId types.ID, resource string, action authority.Action, sec *session.Context) error {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionUpdate); err != nil {
		return err
	}

	return persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		role := authority.Role{}
		if err := tx.Where("id = ? AND (tenant_id = ? OR is_system_role = ?)",
			roleId, sec.Identity.TenantID, true).First(&role).Error; err != nil {
			return err
		}
		perm, err := FindPermission(tx, resource, action)
		if err != nil {
			if gorm.IsRecordNotFoundError(err) {
				return nil
			}
			return err
		}
		return tx.Delete(authority.PolicyAssignment{}, "role_id = ? AND permission_id = ?", role.ID, perm.ID).Error
	})
}

func QueryPolicyAssignments(roleId types.ID, sec *session.Context) ([]authority.PolicyAssignment, error) {
	if _, err := AuthorizeFunc(sec, "roles", authority.ActionRead); err != nil {
		return nil, err
	}
	db := persistence.ActiveDataSourceManager.GormDB()
	role := authority.Role{}
	if err := db.Where("id = ? AND (tenant_id = ? OR is_system_role = ?)",
		roleId, sec.Identity.TenantID, true).First(&role).Error; err != nil {
		return nil, err
	}
	var assignments []authority.PolicyAssignment
	if err := db.Where("role_id = ?", role.ID).Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}
