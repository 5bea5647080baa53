package class

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
	PathClasses = "/v1/classes"
)

func RegisterClassesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathClasses, middleWares...)
	g.POST("", handleCreateClass)
	g.GET("", handleQueryClasses)
	g.POST("/:id/teachers", handleAssignTeacher)
}

func handleCreateClass(c *gin.Context) {
	creation := ClassCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := CreateClassFunc(creation, session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleQueryClasses(c *gin.Context) {
	records, err := QueryClassesFunc(session.FindSecurityContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

type teacherAssignment struct {
	TeacherID types.ID `json:"teacherId" binding:"required"`
}

func handleAssignTeacher(c *gin.Context) {
	assignment := teacherAssignment{}
	if err := c.ShouldBindBodyWith(&assignment, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := AssignTeacherFunc(types.ID(id), assignment.TeacherID, session.FindSecurityContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}
