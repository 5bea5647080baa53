package account

import "github.com/fundwit/go-commons/types"

type User struct {
	ID       types.ID `json:"id"`
	TenantID types.ID `json:"tenantId"`

	Name   string `json:"name" gorm:"unique_index:uni_user_name"`
	Secret string `json:"secret"`

	Nickname    string `json:"nickname"`
	Deactivated bool   `json:"deactivated"`
}

type UserInfo struct {
	ID       types.ID `json:"id"`
	TenantID types.ID `json:"tenantId"`
	Name     string   `json:"name"`
	Nickname string   `json:"nickname"`
}

type UserCreation struct {
	Name     string `json:"name" binding:"required,lte=32"`
	Secret   string `json:"secret" binding:"required,gte=6,lte=32"`
	Nickname string `json:"nickname" binding:"omitempty,gte=1,lte=32"`
}

func (u User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Name
}
