package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	RoleAdmin     = 1
	RoleModerator = 2
	RoleUser      = 3
	RoleBanned    = 4
)

const (
	RoleCodeAdmin     = "admin"
	RoleCodeModerator = "moderator"
	RoleCodeUser      = "user"
	RoleCodeBanned    = "banned"
)

const (
	PermitUserQuery = "user.query"
	PermitUserBan   = "user.ban"
	PermitRoleQuery = "role.query"
)

type Role struct {
	Id          int          `json:"id" gorm:"primaryKey"`
	Code        string       `json:"code" gorm:"type:varchar(20);not null;uniqueIndex"`
	Name        string       `json:"name" gorm:"type:varchar(45)"`
	Ct          time.Time    `json:"ct" gorm:"autoCreateTime"`
	Permissions []Permission `json:"permissions" gorm:"many2many:role_permissions"`
}

type Permission struct {
	Id          int    `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"type:varchar(50);not null;uniqueIndex"`
	Description string `json:"description" gorm:"type:varchar(100)"`
}

// UserRole is the role assignment of a user. Every user holds exactly one role.
type UserRole struct {
	UserId int64 `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	RoleId int   `json:"role_id" gorm:"not null;index"`
}

var builtinPermissions = []Permission{
	{Name: PermitUserQuery, Description: "list users"},
	{Name: PermitUserBan, Description: "ban or unban users"},
	{Name: PermitRoleQuery, Description: "list roles"},
}

var builtinRoles = []struct {
	id      int
	code    string
	name    string
	permits []string
}{
	{RoleAdmin, RoleCodeAdmin, "Administrator", []string{PermitUserQuery, PermitUserBan, PermitRoleQuery}},
	{RoleModerator, RoleCodeModerator, "Moderator", []string{PermitUserQuery, PermitUserBan}},
	{RoleUser, RoleCodeUser, "User", nil},
	{RoleBanned, RoleCodeBanned, "Banned", nil},
}

func (d *DB) GetRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := d.orm.WithContext(ctx).Model(&Role{}).
		Preload("Permissions").
		Order("id asc").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (d *DB) GetRoleById(ctx context.Context, id int) (*Role, error) {
	var role Role
	err := d.orm.WithContext(ctx).Model(&Role{}).
		Preload("Permissions").
		Where("id = ?", id).
		First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (d *DB) FindRolesByUserId(ctx context.Context, uid int64) ([]Role, error) {
	var roles []Role
	err := d.orm.WithContext(ctx).Model(&Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", uid).
		Preload("Permissions").
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// upsertRole replaces the role assignment of uid with rid.
func upsertRole(tx *gorm.DB, uid int64, rid int) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role_id"}),
	}).Create(&UserRole{UserId: uid, RoleId: rid}).Error
}

func fillAuthorities(roles []Role) []string {
	permits := make([]string, 0)
	for _, role := range roles {
		for _, permit := range role.Permissions {
			permits = append(permits, permit.Name)
		}
	}
	return permits
}
