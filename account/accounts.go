package account

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"schoolhub/authority"
	"schoolhub/idgen"
	"schoolhub/persistence"
	"schoolhub/policy"
	"schoolhub/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	userIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateUserFunc = CreateUser
)

func init() {
	policy.UserActiveCheckFunc = IsUserActive
}

func HashSha256(raw string) string {
	h := sha256.New()
	h.Write([]byte(raw))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

// IsUserActive backs the role resolver: a user outside the tenant, or a
// deactivated one, resolves to an empty role set.
func IsUserActive(userId, tenantId types.ID) (bool, error) {
	user := User{}
	err := persistence.ActiveDataSourceManager.GormDB().
		Where("id = ? AND tenant_id = ?", userId, tenantId).First(&user).Error
	if gorm.IsRecordNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !user.Deactivated, nil
}

// CreateUser onboards a staff account into the caller's tenant. The tenant id
// always comes from the session, never from the payload.
func CreateUser(c *UserCreation, sec *session.Context) (*UserInfo, error) {
	if _, err := policy.AuthorizeFunc(sec, "staff", authority.ActionCreate); err != nil {
		return nil, err
	}

	user := User{ID: idgen.NextID(userIdWorker), TenantID: sec.Identity.TenantID,
		Name: c.Name, Nickname: c.Nickname, Secret: HashSha256(c.Secret)}
	if err := persistence.ActiveDataSourceManager.GormDB().Create(&user).Error; err != nil {
		return nil, err
	}
	return &UserInfo{ID: user.ID, TenantID: user.TenantID, Name: user.Name, Nickname: user.Nickname}, nil
}

// DeactivateUser offboards an account. The cached role resolution is dropped
// synchronously, so the account loses access before this call returns.
func DeactivateUser(userId types.ID, sec *session.Context) error {
	if _, err := policy.AuthorizeFunc(sec, "staff", authority.ActionUpdate); err != nil {
		return err
	}

	err := persistence.ActiveDataSourceManager.GormDB().Model(&User{}).
		Where("id = ? AND tenant_id = ?", userId, sec.Identity.TenantID).
		Update("deactivated", true).Error
	if err != nil {
		return err
	}
	return policy.Resolver.Invalidate(userId, sec.Identity.TenantID)
}

// DefaultSecurityConfiguration bootstraps the system-wide super admin role and
// the initial admin account.
func DefaultSecurityConfiguration() error {
	if err := policy.ProvisionSystemDefaults(); err != nil {
		return err
	}

	return persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		admin := User{}
		err := tx.Where("id = ?", 1).First(&admin).Error
		if err != nil && gorm.IsRecordNotFoundError(err) {
			initialAdminPassword := os.Getenv("INITIAL_ADMIN_PASSWORD")
			if initialAdminPassword == "" {
				initialAdminPassword = "admin123"
			}
			admin = User{ID: 1, TenantID: 1, Name: "admin", Secret: HashSha256(initialAdminPassword)}
			if err := tx.Create(&admin).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		assignment := authority.RoleAssignment{}
		err = tx.Where("user_id = ? AND tenant_id = 0 AND role_code = ?", admin.ID, policy.RoleSuperAdmin).
			First(&assignment).Error
		if err == nil {
			return nil
		}
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		assignment = authority.RoleAssignment{ID: idgen.NextID(userIdWorker), UserID: admin.ID,
			TenantID: 0, RoleCode: policy.RoleSuperAdmin, CreateTime: types.CurrentTimestamp()}
		return tx.Create(&assignment).Error
	})
}
