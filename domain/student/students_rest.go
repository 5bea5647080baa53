package student

import (
	"net/http"
	"strconv"

	"schoolhub/bizerror"
	"schoolhub/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathStudents = "/v1/students"
)

func RegisterStudentsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathStudents, middleWares...)
	g.POST("", handleCreateStudent)
	g.GET("", handleQueryStudents)
	g.PUT("/:id", handleUpdateStudent)
	g.DELETE("/:id", handleDeleteStudent)
	g.GET("/export", handleExportStudents)
}

func handleCreateStudent(c *gin.Context) {
	creation := StudentCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := CreateStudentFunc(creation, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleQueryStudents(c *gin.Context) {
	query := StudentQuery{}
	if err := c.MustBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	records, err := QueryStudentsFunc(query, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleUpdateStudent(c *gin.Context) {
	updating := StudentUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := UpdateStudentFunc(parseIdParam(c), updating, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleDeleteStudent(c *gin.Context) {
	affected, err := DeleteStudentFunc(parseIdParam(c), session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"affected": affected})
}

func handleExportStudents(c *gin.Context) {
	content, err := ExportStudentsFunc(session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.Header("Content-Disposition", `attachment; filename="students.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", content)
}

func parseIdParam(c *gin.Context) types.ID {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	return types.ID(id)
}
