package session

import (
	"time"

	"schoolhub/authority"

	"github.com/fundwit/go-commons/types"
)

// Context is the request-scoped user context. Identity comes from the verified
// session token; Roles are re-resolved on every request so that role changes
// take effect without re-authentication.
type Context struct {
	Token    string          `json:"token"`
	Identity Identity        `json:"identity"`
	Roles    authority.Codes `json:"roles"`

	SigningTime time.Time `json:"-"`
}

type Identity struct {
	ID       types.ID `json:"id"`
	TenantID types.ID `json:"tenantId"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
}

func (c *Context) Clone() Context {
	s := *c
	s.Roles = append(authority.Codes{}, c.Roles...)
	return s
}
