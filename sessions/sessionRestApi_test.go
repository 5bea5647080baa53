package sessions_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"schoolhub/account"
	"schoolhub/bizerror"
	"schoolhub/persistence"
	"schoolhub/session"
	"schoolhub/sessions"
	"schoolhub/testinfra"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) *gin.Engine {
	db := testinfra.StartSqliteTestDatabase("schoolhub")
	*testDatabase = db
	Expect(db.DS.GormDB().AutoMigrate(&account.User{}).Error).To(BeNil())
	persistence.ActiveDataSourceManager = db.DS

	engine := gin.New()
	engine.Use(bizerror.ErrorHandling())
	sessions.RegisterSessionsHandler(engine)
	sessions.RegisterSessionHandler(engine, session.SimpleAuthFilter())
	return engine
}

func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func login(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(body))
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	return resp
}

func tokenOf(resp *httptest.ResponseRecorder) string {
	for _, cookie := range resp.Result().Cookies() {
		if cookie.Name == session.KeySecToken {
			return cookie.Value
		}
	}
	return ""
}

func TestSimpleLogin(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("a matching name and password opens a session", func(t *testing.T) {
		defer teardown(t, testDatabase)
		engine := setup(t, &testDatabase)

		user := account.User{ID: 10, TenantID: 1, Name: "ann", Secret: account.HashSha256("s3cret")}
		Expect(testDatabase.DS.GormDB().Create(&user).Error).To(BeNil())

		resp := login(engine, `{"name": "ann", "password": "s3cret"}`)
		Expect(resp.Code).To(Equal(http.StatusOK))
		Expect(resp.Body.String()).To(MatchJSON(`{"id": "10", "tenantId": "1", "name": "ann", "nickname": ""}`))

		token := tokenOf(resp)
		Expect(token).ToNot(BeEmpty())
		_, found := session.TokenCache.Get(token)
		Expect(found).To(BeTrue())
	})

	t.Run("a wrong password or a deactivated account is unauthenticated", func(t *testing.T) {
		defer teardown(t, testDatabase)
		engine := setup(t, &testDatabase)
		db := testDatabase.DS.GormDB()

		user := account.User{ID: 10, TenantID: 1, Name: "ann", Secret: account.HashSha256("s3cret")}
		Expect(db.Create(&user).Error).To(BeNil())

		Expect(login(engine, `{"name": "ann", "password": "wrong"}`).Code).
			To(Equal(http.StatusUnauthorized))
		Expect(login(engine, `{"name": "ghost", "password": "s3cret"}`).Code).
			To(Equal(http.StatusUnauthorized))

		Expect(db.Model(&account.User{}).Where("id = ?", 10).
			Update("deactivated", true).Error).To(BeNil())
		Expect(login(engine, `{"name": "ann", "password": "s3cret"}`).Code).
			To(Equal(http.StatusUnauthorized))
	})
}

func TestSimpleLogout(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("logout drops the session token", func(t *testing.T) {
		defer teardown(t, testDatabase)
		engine := setup(t, &testDatabase)

		user := account.User{ID: 10, TenantID: 1, Name: "ann", Secret: account.HashSha256("s3cret")}
		Expect(testDatabase.DS.GormDB().Create(&user).Error).To(BeNil())
		token := tokenOf(login(engine, `{"name": "ann", "password": "s3cret"}`))

		req := httptest.NewRequest(http.MethodDelete, "/v1/sessions", nil)
		req.AddCookie(&http.Cookie{Name: session.KeySecToken, Value: token})
		resp := httptest.NewRecorder()
		engine.ServeHTTP(resp, req)
		Expect(resp.Code).To(Equal(http.StatusNoContent))

		_, found := session.TokenCache.Get(token)
		Expect(found).To(BeFalse())
	})
}

func TestDetailSession(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("the session detail reflects the authenticated caller", func(t *testing.T) {
		defer teardown(t, testDatabase)
		engine := setup(t, &testDatabase)

		user := account.User{ID: 10, TenantID: 1, Name: "ann", Secret: account.HashSha256("s3cret")}
		Expect(testDatabase.DS.GormDB().Create(&user).Error).To(BeNil())
		token := tokenOf(login(engine, `{"name": "ann", "password": "s3cret"}`))

		req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
		req.AddCookie(&http.Cookie{Name: session.KeySecToken, Value: token})
		resp := httptest.NewRecorder()
		engine.ServeHTTP(resp, req)
		Expect(resp.Code).To(Equal(http.StatusOK))
		Expect(resp.Body.String()).To(ContainSubstring(`"name":"ann"`))

		req = httptest.NewRequest(http.MethodGet, "/v1/session", nil)
		resp = httptest.NewRecorder()
		engine.ServeHTTP(resp, req)
		Expect(resp.Code).To(Equal(http.StatusUnauthorized))
	})
}
