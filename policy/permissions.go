package policy

import (
	"schoolhub/authority"
	"schoolhub/idgen"
	"schoolhub/persistence"

	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	permissionIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})
)

// DefaultResources is the seeded permission catalog. Every resource carries
// the full action set.
var DefaultResources = []string{"students", "classes", "staff", "fees", "attendance_staff", "roles"}

var AllActions = []authority.Action{
	authority.ActionCreate, authority.ActionRead, authority.ActionUpdate,
	authority.ActionDelete, authority.ActionExport,
}

// SeedPermissions idempotently fills the permission catalog.
func SeedPermissions(tx *gorm.DB) error {
	for _, resource := range DefaultResources {
		for _, action := range AllActions {
			perm := authority.Permission{}
			err := tx.Where(&authority.Permission{Resource: resource, Action: action}).First(&perm).Error
			if err == nil {
				continue
			}
			if !gorm.IsRecordNotFoundError(err) {
				return err
			}
			perm = authority.Permission{ID: idgen.NextID(permissionIdWorker), Resource: resource, Action: action}
			if err := tx.Create(&perm).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func FindPermission(tx *gorm.DB, resource string, action authority.Action) (*authority.Permission, error) {
	perm := authority.Permission{}
	if err := tx.Where(&authority.Permission{Resource: resource, Action: action}).First(&perm).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func QueryPermissions() ([]authority.Permission, error) {
	var perms []authority.Permission
	db := persistence.ActiveDataSourceManager.GormDB()
	if err := db.Order("resource, action").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}
