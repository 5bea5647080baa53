package testinfra

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"

	"schoolhub/authority"
	"schoolhub/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// BuildSecCtx builds a request-scoped security context for tests.
func BuildSecCtx(uid, tenantId types.ID, roles ...authority.RoleCode) *session.Context {
	return &session.Context{
		Token:    "test-token",
		Identity: session.Identity{ID: uid, TenantID: tenantId, Name: "user " + uid.String()},
		Roles:    append(authority.Codes{}, roles...),
	}
}

// ExecuteRequest runs a request against the router and returns status and body.
func ExecuteRequest(req *http.Request, router *gin.Engine) (int, string, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	bodyBytes, _ := ioutil.ReadAll(w.Body)
	return w.Code, string(bodyBytes), w
}
