package models

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Permission is a set of capability flags stored as a bitmask.
type Permission int

const (
	PermFollow   Permission = 0x01
	PermComment  Permission = 0x02
	PermWrite    Permission = 0x04
	PermModerate Permission = 0x08
	PermAdmin    Permission = 0x80
)

// Has reports whether every flag in p is present.
func (m Permission) Has(p Permission) bool {
	return m&p == p
}

// Add returns the union of m and p.
func (m Permission) Add(p Permission) Permission {
	return m | p
}

// Remove returns m without the flags in p.
func (m Permission) Remove(p Permission) Permission {
	return m &^ p
}

func (m Permission) String() string {
	return fmt.Sprintf("0x%02x", int(m))
}

// Role names known to the application.
const (
	RoleUser          = "User"
	RoleModerator     = "Moderator"
	RoleAdministrator = "Administrator"
)

// Role is a named bundle of permissions. Exactly one role is the default.
type Role struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Default     bool       `gorm:"column:is_default;index;default:false" json:"default"`
	Permissions Permission `gorm:"not null;default:0" json:"permissions"`
	Users       []User     `json:"-"`
}

// Has reports whether the role grants perm.
func (r *Role) Has(perm Permission) bool {
	return r != nil && r.Permissions.Has(perm)
}

type roleDef struct {
	perms     Permission
	isDefault bool
}

// canonicalRoles lists persisted roles. Anonymous users hold no role at all.
var canonicalRoles = map[string]roleDef{
	RoleUser:          {perms: PermFollow | PermComment | PermWrite, isDefault: true},
	RoleModerator:     {perms: PermFollow | PermComment | PermWrite | PermModerate},
	RoleAdministrator: {perms: 0xff},
}

// CanonicalRoleNames returns the persisted role names in ascending privilege order.
func CanonicalRoleNames() []string {
	return []string{RoleUser, RoleModerator, RoleAdministrator}
}

// InsertRoles creates missing canonical roles and resets the permissions and default flag of
// existing ones. Running it any number of times leaves one row per name and one default.
func InsertRoles(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, name := range CanonicalRoleNames() {
			def := canonicalRoles[name]
			var role Role
			err := tx.Where("name = ?", name).First(&role).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				role = Role{Name: name}
			case err != nil:
				return fmt.Errorf("load role %s: %w", name, err)
			}
			role.Permissions = def.perms
			role.Default = def.isDefault
			if err := tx.Save(&role).Error; err != nil {
				return fmt.Errorf("save role %s: %w", name, err)
			}
		}
		// roles added by hand must not compete for the default slot
		return tx.Model(&Role{}).
			Where("name NOT IN ?", CanonicalRoleNames()).
			Update("is_default", false).Error
	})
}

// DefaultRole returns the role assigned to newly registered users.
func DefaultRole(db *gorm.DB) (*Role, error) {
	var role Role
	if err := db.Where(&Role{Default: true}).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// RoleByName loads a role by its unique name.
func RoleByName(db *gorm.DB, name string) (*Role, error) {
	var role Role
	if err := db.Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}
