package class

import (
	"time"

	"schoolhub/authority"
	"schoolhub/idgen"
	"schoolhub/persistence"
	"schoolhub/policy"
	"schoolhub/rls"
	"schoolhub/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

const EntityClasses = "classes"

type Class struct {
	ID       types.ID `json:"id"`
	TenantID types.ID `json:"tenantId"`

	Name string `json:"name" binding:"required,lte=255"`

	// OwnerID is the owning-user reference, the staff member responsible for
	// the class record.
	OwnerID types.ID `json:"ownerId"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	DeletedAt  *time.Time      `json:"-"`
}

// TeacherClass links a teacher to a class they teach. It is the relationship
// behind a teacher's "owned" visibility of students.
type TeacherClass struct {
	ID       types.ID `json:"id"`
	TenantID types.ID `json:"tenantId" gorm:"unique_index:uni_teacher_class"`

	TeacherID types.ID `json:"teacherId" gorm:"unique_index:uni_teacher_class"`
	ClassID   types.ID `json:"classId" gorm:"unique_index:uni_teacher_class"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

type ClassCreation struct {
	Name string `json:"name" binding:"required,lte=255"`
}

var (
	classIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateClassFunc  = CreateClass
	QueryClassesFunc = QueryClasses
	AssignTeacherFunc = AssignTeacher
)

func init() {
	rls.RegisterEntity(rls.EntityBinding{Entity: EntityClasses, OwnerColumn: "owner_id",
		Owned: classOwnership{}})
}

// classOwnership: a teacher owns the classes they are assigned to, besides the
// classes whose record they own directly.
type classOwnership struct{}

func (classOwnership) Fragment(sec *session.Context, op rls.Operation) (rls.FilterFragment, error) {
	return rls.FilterFragment{
		Query: "(owner_id = ? OR id IN (SELECT class_id FROM teacher_classes WHERE teacher_id = ? AND tenant_id = ?))",
		Args:  []interface{}{sec.Identity.ID, sec.Identity.ID, sec.Identity.TenantID},
	}, nil
}

// CreateClass stamps the tenant from the session; the payload carries none.
func CreateClass(c ClassCreation, sec *session.Context) (*Class, error) {
	if _, err := policy.AuthorizeFunc(sec, EntityClasses, authority.ActionCreate); err != nil {
		return nil, err
	}

	r := Class{ID: idgen.NextID(classIdWorker), TenantID: sec.Identity.TenantID, Name: c.Name,
		OwnerID: sec.Identity.ID, CreateTime: types.CurrentTimestamp()}
	if err := persistence.ActiveDataSourceManager.GormDB().Create(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// QueryClasses lists the classes the caller may see. A denied read yields an
// empty list, never an error.
func QueryClasses(sec *session.Context) ([]Class, error) {
	resolved, err := policy.ResolveFor(sec, EntityClasses, authority.ActionRead)
	if err != nil {
		return nil, err
	}
	filter, err := rls.BuildFilterFunc(resolved, EntityClasses, sec, rls.OpRead)
	if err != nil {
		return nil, err
	}

	classes := []Class{}
	db := filter(persistence.ActiveDataSourceManager.GormDB())
	if err := db.Order("id ASC").Find(&classes).Error; err != nil {
		return nil, err
	}
	return classes, nil
}

// AssignTeacher links a teacher to a class the caller may update.
func AssignTeacher(classId, teacherId types.ID, sec *session.Context) error {
	resolved, err := policy.AuthorizeFunc(sec, EntityClasses, authority.ActionUpdate)
	if err != nil {
		return err
	}
	filter, err := rls.BuildFilterFunc(resolved, EntityClasses, sec, rls.OpUpdate)
	if err != nil {
		return err
	}

	return persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		target := Class{}
		if err := filter(tx).Where("id = ?", classId).First(&target).Error; err != nil {
			return err
		}

		existing := TeacherClass{}
		err := tx.Where("tenant_id = ? AND teacher_id = ? AND class_id = ?",
			target.TenantID, teacherId, target.ID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		link := TeacherClass{ID: idgen.NextID(classIdWorker), TenantID: target.TenantID,
			TeacherID: teacherId, ClassID: target.ID, CreateTime: types.CurrentTimestamp()}
		return tx.Create(&link).Error
	})
}
