package servehttp

import (
	"schoolhub/authority"
	"schoolhub/bizerror"
	"schoolhub/policy"
	"schoolhub/session"

	"github.com/gin-gonic/gin"
)

// Guard rejects a request before its handler runs unless the caller holds a
// grant on (resource, action). Handlers behind a Guard still build their own
// row filter; the guard only settles the coarse allow/deny.
func Guard(resource string, action authority.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		sec := session.FindSecurityContext(c)
		if sec == nil {
			panic(bizerror.ErrUserContextMissing)
		}
		if _, err := policy.AuthorizeFunc(sec, resource, action); err != nil {
			panic(err)
		}
		c.Next()
	}
}
