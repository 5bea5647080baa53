package policy

import (
	"net/http"
	"strconv"

	"schoolhub/authority"
	"schoolhub/bizerror"
	"schoolhub/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathRoles             = "/v1/roles"
	PathRoleAssignments   = "/v1/role-assignments"
	PathPolicyAssignments = "/v1/policy-assignments"
	PathPermissions       = "/v1/permissions"
)

// RegisterPermissionsRestAPI exposes the permission catalog. The query itself
// carries no gate; callers register it behind an authorization middleware.
func RegisterPermissionsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathPermissions, middleWares...)
	g.GET("", handleQueryPermissions)
}

func handleQueryPermissions(c *gin.Context) {
	perms, err := QueryPermissions()
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, perms)
}

func RegisterRolesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathRoles, middleWares...)
	g.GET("", handleQueryRoles)
	g.POST("", handleCreateRole)
	g.PUT("/:id", handleUpdateRole)
	g.DELETE("/:id", handleDeleteRole)
	g.GET("/:id/policy-assignments", handleQueryPolicyAssignments)

	ra := r.Group(PathRoleAssignments, middleWares...)
	ra.POST("", handleAssignRole)
	ra.DELETE("", handleRemoveRole)

	pa := r.Group(PathPolicyAssignments, middleWares...)
	pa.POST("", handleUpsertPolicyAssignment)
	pa.DELETE("", handleDeletePolicyAssignment)
}

func handleQueryRoles(c *gin.Context) {
	roles, err := QueryRoles(session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, roles)
}

func handleCreateRole(c *gin.Context) {
	creation := RoleCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := CreateRoleFunc(creation, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleUpdateRole(c *gin.Context) {
	updating := RoleUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := UpdateRoleFunc(parseIdParam(c), updating, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleDeleteRole(c *gin.Context) {
	if err := DeleteRoleFunc(parseIdParam(c), session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func handleQueryPolicyAssignments(c *gin.Context) {
	assignments, err := QueryPolicyAssignments(parseIdParam(c), session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, assignments)
}

type roleAssignmentChange struct {
	UserID   types.ID           `json:"userId" binding:"required"`
	RoleCode authority.RoleCode `json:"roleCode" binding:"required"`
}

func handleAssignRole(c *gin.Context) {
	change := roleAssignmentChange{}
	if err := c.ShouldBindBodyWith(&change, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := AssignRoleFunc(change.UserID, change.RoleCode, session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func handleRemoveRole(c *gin.Context) {
	change := roleAssignmentChange{}
	if err := c.ShouldBindBodyWith(&change, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := RemoveRoleFunc(change.UserID, change.RoleCode, session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func handleUpsertPolicyAssignment(c *gin.Context) {
	change := PolicyAssignmentChange{}
	if err := c.ShouldBindBodyWith(&change, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := UpsertPolicyAssignmentFunc(change, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

type policyAssignmentRemoval struct {
	RoleID   types.ID         `json:"roleId" binding:"required"`
	Resource string           `json:"resource" binding:"required"`
	Action   authority.Action `json:"action" binding:"required"`
}

func handleDeletePolicyAssignment(c *gin.Context) {
	removal := policyAssignmentRemoval{}
	if err := c.ShouldBindBodyWith(&removal, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := DeletePolicyAssignmentFunc(removal.RoleID, removal.Resource, removal.Action,
		session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func parseIdParam(c *gin.Context) types.ID {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return types.ID(id)
}
