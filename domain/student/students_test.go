package student_test

import (
	"bytes"
	"testing"

	"schoolhub/authority"
	"schoolhub/bizerror"
	"schoolhub/domain/class"
	"schoolhub/domain/student"
	"schoolhub/persistence"
	"schoolhub/policy"
	"schoolhub/testinfra"

	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartSqliteTestDatabase("schoolhub")
	*testDatabase = db
	Expect(db.DS.GormDB().AutoMigrate(&authority.Permission{}, &authority.Role{},
		&authority.PolicyAssignment{}, &authority.RoleAssignment{},
		&class.Class{}, &class.TeacherClass{},
		&student.Student{}, &student.ParentStudent{}).Error).To(BeNil())

	persistence.ActiveDataSourceManager = db.DS
	Expect(policy.ProvisionTenantDefaults(1)).To(BeNil())
	Expect(policy.ProvisionTenantDefaults(2)).To(BeNil())
}

func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func TestCreateStudent(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("the tenant is stamped from the session, never from the payload", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		created, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, admin)
		Expect(err).To(BeNil())
		Expect(created.TenantID).To(BeEquivalentTo(1))
		Expect(created.OwnerID).To(BeEquivalentTo(100))
		Expect(created.CreateTime.Time().IsZero()).To(BeFalse())
	})

	t.Run("a role without the create grant is refused", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		teacher := testinfra.BuildSecCtx(20, 1, policy.RoleTeacher)
		_, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, teacher)
		Expect(err).To(Equal(bizerror.ErrImplicitDeny))
	})
}

func TestQueryStudents(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("a teacher only sees the students of their classes", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		c1, err := class.CreateClass(class.ClassCreation{Name: "1-A"}, admin)
		Expect(err).To(BeNil())
		c2, err := class.CreateClass(class.ClassCreation{Name: "1-B"}, admin)
		Expect(err).To(BeNil())
		Expect(class.AssignTeacher(c1.ID, 20, admin)).To(BeNil())

		s1, err := student.CreateStudent(student.StudentCreation{Name: "Ada", ClassID: c1.ID}, admin)
		Expect(err).To(BeNil())
		_, err = student.CreateStudent(student.StudentCreation{Name: "Ben", ClassID: c2.ID}, admin)
		Expect(err).To(BeNil())

		teacher := testinfra.BuildSecCtx(20, 1, policy.RoleTeacher)
		records, err := student.QueryStudents(student.StudentQuery{}, teacher)
		Expect(err).To(BeNil())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal(s1.ID))
		Expect(records[0].Name).To(Equal("Ada"))
	})

	t.Run("a parent only sees the students linked to them", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		s1, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, admin)
		Expect(err).To(BeNil())
		_, err = student.CreateStudent(student.StudentCreation{Name: "Ben"}, admin)
		Expect(err).To(BeNil())
		Expect(student.LinkParent(s1.ID, 300, admin)).To(BeNil())

		parent := testinfra.BuildSecCtx(300, 1, policy.RoleParent)
		records, err := student.QueryStudents(student.StudentQuery{}, parent)
		Expect(err).To(BeNil())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal(s1.ID))
	})

	t.Run("the class filter narrows below what the scope allows", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		c1, err := class.CreateClass(class.ClassCreation{Name: "1-A"}, admin)
		Expect(err).To(BeNil())
		s1, err := student.CreateStudent(student.StudentCreation{Name: "Ada", ClassID: c1.ID}, admin)
		Expect(err).To(BeNil())
		_, err = student.CreateStudent(student.StudentCreation{Name: "Ben"}, admin)
		Expect(err).To(BeNil())

		records, err := student.QueryStudents(student.StudentQuery{ClassID: c1.ID}, admin)
		Expect(err).To(BeNil())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal(s1.ID))
	})

	t.Run("rows of another tenant are never visible", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin1 := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		admin2 := testinfra.BuildSecCtx(200, 2, policy.RoleSchoolAdmin)
		_, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, admin1)
		Expect(err).To(BeNil())
		s2, err := student.CreateStudent(student.StudentCreation{Name: "Ben"}, admin2)
		Expect(err).To(BeNil())

		records, err := student.QueryStudents(student.StudentQuery{}, admin2)
		Expect(err).To(BeNil())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal(s2.ID))
	})

	t.Run("a denied read is an empty list, not an error", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		_, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, admin)
		Expect(err).To(BeNil())

		staff := testinfra.BuildSecCtx(40, 1, policy.RoleStaff)
		records, err := student.QueryStudents(student.StudentQuery{}, staff)
		Expect(err).To(BeNil())
		Expect(records).To(BeEmpty())
	})
}

func TestUpdateStudent(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("a teacher may update students of their classes and nothing beyond", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		c1, err := class.CreateClass(class.ClassCreation{Name: "1-A"}, admin)
		Expect(err).To(BeNil())
		c2, err := class.CreateClass(class.ClassCreation{Name: "1-B"}, admin)
		Expect(err).To(BeNil())
		Expect(class.AssignTeacher(c1.ID, 20, admin)).To(BeNil())

		s1, err := student.CreateStudent(student.StudentCreation{Name: "Ada", ClassID: c1.ID}, admin)
		Expect(err).To(BeNil())
		s2, err := student.CreateStudent(student.StudentCreation{Name: "Ben", ClassID: c2.ID}, admin)
		Expect(err).To(BeNil())

		teacher := testinfra.BuildSecCtx(20, 1, policy.RoleTeacher)
		updated, err := student.UpdateStudent(s1.ID, student.StudentUpdating{Name: "Ada L."}, teacher)
		Expect(err).To(BeNil())
		Expect(updated.Name).To(Equal("Ada L."))

		_, err = student.UpdateStudent(s2.ID, student.StudentUpdating{Name: "Ben L."}, teacher)
		Expect(gorm.IsRecordNotFoundError(err)).To(BeTrue())
	})
}

func TestDeleteStudent(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("a tenant-wide delete still stops at the tenant boundary", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		db := testDatabase.DS.GormDB()

		admin1 := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		admin2 := testinfra.BuildSecCtx(200, 2, policy.RoleSchoolAdmin)
		s1, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, admin1)
		Expect(err).To(BeNil())

		affected, err := student.DeleteStudent(s1.ID, admin2)
		Expect(err).To(BeNil())
		Expect(affected).To(BeZero())

		affected, err = student.DeleteStudent(s1.ID, admin1)
		Expect(err).To(BeNil())
		Expect(affected).To(BeEquivalentTo(1))

		records, err := student.QueryStudents(student.StudentQuery{}, admin1)
		Expect(err).To(BeNil())
		Expect(records).To(BeEmpty())

		// the row survives as soft-deleted
		count := 0
		Expect(db.Unscoped().Model(&student.Student{}).
			Where("id = ? AND deleted_at IS NOT NULL", s1.ID).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(1))
	})

	t.Run("a role without the delete grant is refused before the data layer", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		s1, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, admin)
		Expect(err).To(BeNil())

		teacher := testinfra.BuildSecCtx(20, 1, policy.RoleTeacher)
		_, err = student.DeleteStudent(s1.ID, teacher)
		Expect(err).To(Equal(bizerror.ErrImplicitDeny))
	})
}

func TestLinkParent(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("linking is idempotent and bound to the caller's reach", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)
		db := testDatabase.DS.GormDB()

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		s1, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, admin)
		Expect(err).To(BeNil())

		Expect(student.LinkParent(s1.ID, 300, admin)).To(BeNil())
		Expect(student.LinkParent(s1.ID, 300, admin)).To(BeNil())

		count := 0
		Expect(db.Model(&student.ParentStudent{}).
			Where("student_id = ? AND parent_id = ?", s1.ID, 300).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(1))

		admin2 := testinfra.BuildSecCtx(200, 2, policy.RoleSchoolAdmin)
		err = student.LinkParent(s1.ID, 300, admin2)
		Expect(gorm.IsRecordNotFoundError(err)).To(BeTrue())
	})
}

func TestExportStudents(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("the export carries exactly the rows the caller may see", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		admin := testinfra.BuildSecCtx(100, 1, policy.RoleSchoolAdmin)
		_, err := student.CreateStudent(student.StudentCreation{Name: "Ada"}, admin)
		Expect(err).To(BeNil())
		_, err = student.CreateStudent(student.StudentCreation{Name: "Ben"}, admin)
		Expect(err).To(BeNil())

		data, err := student.ExportStudents(admin)
		Expect(err).To(BeNil())

		workbook, err := excelize.OpenReader(bytes.NewReader(data))
		Expect(err).To(BeNil())
		defer workbook.Close()
		sheet := workbook.GetSheetName(0)
		rows, err := workbook.GetRows(sheet)
		Expect(err).To(BeNil())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0][1]).To(Equal("Name"))
		Expect(rows[1][1]).To(Equal("Ada"))
		Expect(rows[2][1]).To(Equal("Ben"))
	})

	t.Run("a role without the export grant is refused", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		teacher := testinfra.BuildSecCtx(20, 1, policy.RoleTeacher)
		_, err := student.ExportStudents(teacher)
		Expect(err).To(Equal(bizerror.ErrImplicitDeny))
	})
}
