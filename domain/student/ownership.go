package student

import (
	"strings"

	"schoolhub/policy"
	"schoolhub/rls"
	"schoolhub/session"
)

func init() {
	rls.RegisterEntity(rls.EntityBinding{Entity: EntityStudents, OwnerColumn: "owner_id",
		Owned: studentOwnership{}})
}

// studentOwnership maps the "owned" scope for students: a teacher owns the
// students of their classes, a parent owns the students linked to them, and
// any other role falls back to the owning-user reference. A caller holding
// several of these roles sees the union.
type studentOwnership struct{}

func (studentOwnership) Fragment(sec *session.Context, op rls.Operation) (rls.FilterFragment, error) {
	var parts []string
	var args []interface{}

	if sec.Roles.Has(policy.RoleTeacher) {
		parts = append(parts, "class_id IN (SELECT class_id FROM teacher_classes WHERE teacher_id = ? AND tenant_id = ?)")
		args = append(args, sec.Identity.ID, sec.Identity.TenantID)
	}
	if sec.Roles.Has(policy.RoleParent) {
		parts = append(parts, "id IN (SELECT student_id FROM parent_students WHERE parent_id = ? AND tenant_id = ?)")
		args = append(args, sec.Identity.ID, sec.Identity.TenantID)
	}
	if len(parts) == 0 {
		parts = append(parts, "owner_id = ?")
		args = append(args, sec.Identity.ID)
	}

	return rls.FilterFragment{Query: "(" + strings.Join(parts, " OR ") + ")", Args: args}, nil
}
