package student

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

const EntityStudents = "students"

type Student struct {
	ID       types.ID `json:"id"`
	TenantID types.ID `json:"tenantId"`

	Name    string   `json:"name" binding:"required,lte=255"`
	ClassID types.ID `json:"classId"`

	// OwnerID is the owning-user reference, the staff member who manages the
	// student record. The self scope and the default owned fallback key on it.
	OwnerID types.ID `json:"ownerId"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	DeletedAt  *time.Time      `json:"-"`
}

// ParentStudent links a guardian account to a student. It is the relationship
// behind a parent's "owned" visibility.
type ParentStudent struct {
	ID       types.ID `json:"id"`
	TenantID types.ID `json:"tenantId" gorm:"unique_index:uni_parent_student"`

	ParentID  types.ID `json:"parentId" gorm:"unique_index:uni_parent_student"`
	StudentID types.ID `json:"studentId" gorm:"unique_index:uni_parent_student"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
}

type StudentCreation struct {
	Name    string   `json:"name" binding:"required,lte=255"`
	ClassID types.ID `json:"classId"`
}

type StudentUpdating struct {
	Name    string   `json:"name" binding:"required,lte=255"`
	ClassID types.ID `json:"classId"`
}

type StudentQuery struct {
	// ClassID optionally narrows a read below what the scope already allows.
	ClassID types.ID `json:"classId" form:"classId"`
}

var (
	studentIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateStudentFunc  = CreateStudent
	QueryStudentsFunc  = QueryStudents
	UpdateStudentFunc  = UpdateStudent
	DeleteStudentFunc  = DeleteStudent
	ExportStudentsFunc = ExportStudents
	LinkParentFunc     = LinkParent
)

// CreateStudent stamps the row's tenant from the session; a caller-supplied
// tenant id does not exist in the payload at all.
func CreateStudent(c StudentCreation, sec *session.Context) (*Student, error) {
	if _, err := policy.AuthorizeFunc(sec, EntityStudents, authority.ActionCreate); err != nil {
		return nil, err
	}

	r := Student{ID: idgen.NextID(studentIdWorker), TenantID: sec.Identity.TenantID,
		Name: c.Name, ClassID: c.ClassID, OwnerID: sec.Identity.ID,
		CreateTime: types.CurrentTimestamp()}
	if err := persistence.ActiveDataSourceManager.GormDB().Create(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// QueryStudents lists the students visible to the caller. A denied read
// yields an empty list, never an error.
func QueryStudents(q StudentQuery, sec *session.Context) ([]Student, error) {
	resolved, err := policy.ResolveFor(sec, EntityStudents, authority.ActionRead)
	if err != nil {
		return nil, err
	}
	filter, err := rls.BuildFilterFunc(resolved, EntityStudents, sec, rls.OpRead)
	if err != nil {
		return nil, err
	}

	students := []Student{}
	db := filter(persistence.ActiveDataSourceManager.GormDB())
	if q.ClassID != 0 {
		db = db.Where("class_id = ?", q.ClassID)
	}
	if err := db.Order("id ASC").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

func UpdateStudent(id types.ID, u StudentUpdating, sec *session.Context) (*Student, error) {
	resolved, err := policy.AuthorizeFunc(sec, EntityStudents, authority.ActionUpdate)
	if err != nil {
		return nil, err
	}
	filter, err := rls.BuildFilterFunc(resolved, EntityStudents, sec, rls.OpUpdate)
	if err != nil {
		return nil, err
	}

	r := Student{}
	err = persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		if err := filter(tx).Where("id = ?", id).First(&r).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{"name": u.Name}
		if u.ClassID != 0 {
			updates["class_id"] = u.ClassID
		}
		if err := tx.Model(&r).Updates(updates).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteStudent soft-deletes every visible row matching the id and reports the
// affected count. A row outside the caller's filter, a foreign tenant's row
// included, simply counts zero; that is not an error.
func DeleteStudent(id types.ID, sec *session.Context) (int64, error) {
	resolved, err := policy.AuthorizeFunc(sec, EntityStudents, authority.ActionDelete)
	if err != nil {
		return 0, err
	}
	filter, err := rls.BuildFilterFunc(resolved, EntityStudents, sec, rls.OpDelete)
	if err != nil {
		return 0, err
	}

	result := filter(persistence.ActiveDataSourceManager.GormDB()).
		Where("id = ?", id).Delete(Student{})
	return result.RowsAffected, result.Error
}

// LinkParent attaches a guardian to a student the caller may update.
func LinkParent(studentId, parentId types.ID, sec *session.Context) error {
	resolved, err := policy.AuthorizeFunc(sec, EntityStudents, authority.ActionUpdate)
	if err != nil {
		return err
	}
	filter, err := rls.BuildFilterFunc(resolved, EntityStudents, sec, rls.OpUpdate)
	if err != nil {
		return err
	}

	return persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		target := Student{}
		if err := filter(tx).Where("id = ?", studentId).First(&target).Error; err != nil {
			return err
		}

		existing := ParentStudent{}
		err := tx.Where("tenant_id = ? AND parent_id = ? AND student_id = ?",
			target.TenantID, parentId, target.ID).First(&existing).Error
		if err == nil {
			return nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		link := ParentStudent{ID: idgen.NextID(studentIdWorker), TenantID: target.TenantID,
			ParentID: parentId, StudentID: target.ID, CreateTime: types.CurrentTimestamp()}
		return tx.Create(&link).Error
	})
}
