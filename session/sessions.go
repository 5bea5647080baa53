package session

import (
	"time"

	"schoolhub/authority"
	"schoolhub/bizerror"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const TokenExpiration = 24 * time.Hour

var TokenCache = cache.New(TokenExpiration, 1*time.Minute)

type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

const KeySecCtx = "SecCtx"
const KeySecToken = "sec_token"

// LoadRolesFunc re-resolves the caller's role codes on every request. Wired to
// the role resolver at startup; the token payload is never trusted for roles.
var LoadRolesFunc = func(userId, tenantId types.ID) (authority.Codes, error) {
	return authority.Codes{}, nil
}

func FindSecurityContext(ctx *gin.Context) *Context {
	value, found := ctx.Get(KeySecCtx)
	if !found {
		return nil
	}
	secCtx, ok := value.(*Context)
	if !ok || secCtx.Token == "" {
		return nil
	}
	return secCtx
}

func SaveSecurityContext(ctx *gin.Context, secCtx *Context) {
	if secCtx != nil && secCtx.Token != "" {
		ctx.Set(KeySecCtx, secCtx)
	}
}

func SimpleAuthFilter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := ctx.Cookie(KeySecToken)
		if err != nil {
			panic(bizerror.ErrUnauthenticated)
		}
		securityContextValue, found := TokenCache.Get(token)
		if !found {
			panic(bizerror.ErrUnauthenticated)
		}
		secCtx, ok := securityContextValue.(*Context)
		if !ok {
			panic(bizerror.ErrUnauthenticated)
		}

		roles, err := LoadRolesFunc(secCtx.Identity.ID, secCtx.Identity.TenantID)
		if err != nil {
			panic(err)
		}
		fresh := secCtx.Clone()
		fresh.Roles = roles

		SaveSecurityContext(ctx, &fresh)
		ctx.Next()
	}
}
