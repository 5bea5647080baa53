package authority

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fundwit/go-commons/types"
)

// RoleCode is the immutable, uppercase identifier of a role used for policy
// lookups. A tenant-scoped role may share a code with a system role, in which
// case both contribute assignments during aggregation.
type RoleCode string

type Codes []RoleCode

func (c Codes) Has(code RoleCode) bool {
	for _, v := range c {
		if strings.EqualFold(string(v), string(code)) {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

func (a Action) Known() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport:
		return true
	}
	return false
}

type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

type Scope string

const (
	ScopeSelf   Scope = "self"
	ScopeOwned  Scope = "owned"
	ScopeTenant Scope = "tenant"
	ScopeCustom Scope = "custom"
)

var scopeRanks = map[Scope]int{ScopeSelf: 1, ScopeOwned: 2, ScopeTenant: 3}

// Rank orders the widening scopes self < owned < tenant. Custom carries no
// rank; it is only selected when no ranked scope is granted.
func (s Scope) Rank() int {
	return scopeRanks[s]
}

func (s Scope) Known() bool {
	return s == ScopeCustom || s.Rank() > 0
}

// ConditionSet is a structured field-predicate map attached to a custom-scoped
// assignment, e.g. {"department_id": "$userId"}. Values starting with '$' are
// resolved against the caller context when the filter is built.
type ConditionSet map[string]string

func (c ConditionSet) IsVoid() bool {
	return len(c) == 0
}

func (c ConditionSet) Value() (driver.Value, error) {
	if len(c) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (c *ConditionSet) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	switch raw := src.(type) {
	case []byte:
		if len(raw) == 0 {
			*c = nil
			return nil
		}
		return json.Unmarshal(raw, c)
	case string:
		if raw == "" {
			*c = nil
			return nil
		}
		return json.Unmarshal([]byte(raw), c)
	}
	return errors.New("unsupported source type of condition set")
}

// Permission is one (resource, action) pair of the catalog.
type Permission struct {
	ID types.ID `json:"id"`

	Resource string `json:"resource" gorm:"unique_index:uni_resource_action"`
	Action   Action `json:"action" gorm:"unique_index:uni_resource_action"`
}

// Role is a tenant-scoped or system-wide named role. TenantID is zero for
// system-wide roles, and IsSystemRole holds exactly in that case.
type Role struct {
	ID types.ID `json:"id"`

	TenantID     types.ID `json:"tenantId" gorm:"unique_index:uni_role_tenant_code"`
	Name         string   `json:"name"`
	Code         RoleCode `json:"code" gorm:"unique_index:uni_role_tenant_code"`
	IsSystemRole bool     `json:"isSystemRole"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

// PolicyAssignment is the role-permission edge. A role holds at most one
// assignment per permission.
type PolicyAssignment struct {
	ID types.ID `json:"id"`

	RoleID       types.ID `json:"roleId" gorm:"unique_index:uni_role_permission"`
	PermissionID types.ID `json:"permissionId" gorm:"unique_index:uni_role_permission"`

	Effect     Effect       `json:"effect"`
	Scope      Scope        `json:"scope"`
	Conditions ConditionSet `json:"conditions,omitempty" gorm:"type:TEXT"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

// RoleAssignment is the user-role edge within a tenant.
type RoleAssignment struct {
	ID types.ID `json:"id"`

	UserID   types.ID `json:"userId" gorm:"unique_index:uni_user_tenant_role"`
	TenantID types.ID `json:"tenantId" gorm:"unique_index:uni_user_tenant_role"`
	RoleCode RoleCode `json:"roleCode" gorm:"unique_index:uni_user_tenant_role"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

const (
	ReasonAllow        = "allow"
	ReasonExplicitDeny = "explicit_deny"
	ReasonImplicitDeny = "implicit_deny"
	ReasonUnknownScope = "unknown_scope"
)

// ResolvedPolicy is the request-scoped decision for one (resource, action).
type ResolvedPolicy struct {
	Allowed    bool           `json:"allowed"`
	Scope      Scope          `json:"scope,omitempty"`
	Conditions []ConditionSet `json:"conditions,omitempty"`
	Reason     string         `json:"reason"`
}
