package sessions

import (
	"net/http"
	"time"

	"schoolhub/account"
	"schoolhub/bizerror"
	"schoolhub/persistence"
	"schoolhub/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
)

func RegisterSessionsHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/sessions", middleWares...)
	g.POST("", SimpleLoginHandler)
	g.DELETE("", SimpleLogoutHandler)
}

func RegisterSessionHandler(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group("/v1/session", middleWares...)
	g.GET("", DetailSessionSecurityContext)
}

func SimpleLoginHandler(c *gin.Context) {
	login := session.LoginRequest{}
	if err := c.ShouldBindBodyWith(&login, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	user := account.User{}
	err := persistence.ActiveDataSourceManager.GormDB().
		Where("name = ? AND secret = ?", login.Name, account.HashSha256(login.Password)).
		First(&user).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			panic(bizerror.ErrUnauthenticated)
		}
		panic(err)
	}
	if user.Deactivated {
		panic(bizerror.ErrUnauthenticated)
	}

	token := uuid.New().String()
	securityContext := session.Context{Token: token,
		Identity: session.Identity{ID: user.ID, TenantID: user.TenantID, Name: user.Name, Nickname: user.Nickname},
		SigningTime: time.Now()}
	session.TokenCache.Set(token, &securityContext, cache.DefaultExpiration)

	c.SetCookie(session.KeySecToken, token, int(session.TokenExpiration/time.Second), "/", "", false, false)
	c.JSON(http.StatusOK, &securityContext.Identity)
}

func SimpleLogoutHandler(c *gin.Context) {
	token, err := c.Cookie(session.KeySecToken)
	if err == nil && token != "" {
		session.TokenCache.Delete(token)
	}
	c.SetCookie(session.KeySecToken, "", -1, "/", "", false, false)
	c.Status(http.StatusNoContent)
}

func DetailSessionSecurityContext(c *gin.Context) {
	sec := session.FindSecurityContext(c)
	if sec == nil {
		panic(bizerror.ErrUnauthenticated)
	}

	ttl := session.TokenExpiration - time.Now().Sub(sec.SigningTime)
	if ttl <= 0 {
		panic(bizerror.ErrUnauthenticated)
	}
	c.JSON(http.StatusOK, sec)
}
