package session_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"schoolhub/authority"
	"schoolhub/bizerror"
	"schoolhub/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	. "github.com/onsi/gomega"
)

func TestSimpleAuthFilter(t *testing.T) {
	RegisterTestingT(t)

	buildEngine := func(captured **session.Context) *gin.Engine {
		engine := gin.New()
		engine.Use(bizerror.ErrorHandling())
		engine.GET("/", session.SimpleAuthFilter(), func(c *gin.Context) {
			*captured = session.FindSecurityContext(c)
			c.Status(http.StatusOK)
		})
		return engine
	}

	t.Run("a request without a token is unauthenticated", func(t *testing.T) {
		var captured *session.Context
		engine := buildEngine(&captured)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		resp := httptest.NewRecorder()
		engine.ServeHTTP(resp, req)
		Expect(resp.Code).To(Equal(http.StatusUnauthorized))
		Expect(captured).To(BeNil())
	})

	t.Run("an unknown token is unauthenticated", func(t *testing.T) {
		var captured *session.Context
		engine := buildEngine(&captured)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: session.KeySecToken, Value: "expired"})
		resp := httptest.NewRecorder()
		engine.ServeHTTP(resp, req)
		Expect(resp.Code).To(Equal(http.StatusUnauthorized))
	})

	t.Run("the roles of a valid session are re-resolved on every request", func(t *testing.T) {
		originLoadRoles := session.LoadRolesFunc
		defer func() { session.LoadRolesFunc = originLoadRoles }()
		session.LoadRolesFunc = func(userId, tenantId types.ID) (authority.Codes, error) {
			return authority.Codes{"TEACHER"}, nil
		}

		var captured *session.Context
		engine := buildEngine(&captured)

		// the cached context carries stale roles on purpose
		stale := session.Context{Token: "token-1",
			Identity: session.Identity{ID: 10, TenantID: 1, Name: "ann"},
			Roles:    authority.Codes{"SCHOOL_ADMIN"}}
		session.TokenCache.Set("token-1", &stale, cache.DefaultExpiration)
		defer session.TokenCache.Delete("token-1")

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: session.KeySecToken, Value: "token-1"})
		resp := httptest.NewRecorder()
		engine.ServeHTTP(resp, req)

		Expect(resp.Code).To(Equal(http.StatusOK))
		Expect(captured).ToNot(BeNil())
		Expect(captured.Identity.ID).To(BeEquivalentTo(10))
		Expect(captured.Roles).To(Equal(authority.Codes{"TEACHER"}))

		// the cached copy is untouched
		Expect(stale.Roles).To(Equal(authority.Codes{"SCHOOL_ADMIN"}))
	})
}
