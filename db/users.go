package db

import (
	"context"
	"errors"
	"math"
	"time"

	"gorm.io/gorm"
)

type User struct {
	Id          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username    string    `json:"username" gorm:"type:varchar(50);not null;uniqueIndex"`
	Password    string    `json:"password,omitempty" gorm:"type:varchar(200);not null"`
	Avatar      *string   `json:"avatar" gorm:"type:varchar(300)"`
	Banned      bool      `json:"banned" gorm:"not null;default:false"`
	CreateTime  time.Time `json:"create_time" gorm:"autoCreateTime"`
	UpdateTime  time.Time `json:"update_time" gorm:"autoUpdateTime"`
	Roles       []Role    `json:"roles,omitempty" gorm:"-:all"`
	Authorities []string  `json:"authorities,omitempty" gorm:"-:all"`
}

type UserFilter struct {
	Keyword string `json:"keyword" query:"type:in_like,field:username,omitempty"`
}

// CreateUser inserts u and assigns it role rid in one transaction.
func (d *DB) CreateUser(ctx context.Context, u *User, rid int) (*User, error) {
	err := d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return translate(err)
		}
		return tx.Create(&UserRole{UserId: u.Id, RoleId: rid}).Error
	})
	if err != nil {
		return nil, err
	}
	return d.FindUserById(ctx, u.Id, false)
}

// FindUserById loads a user; preload also fills Roles and Authorities.
func (d *DB) FindUserById(ctx context.Context, uid int64, preload bool) (*User, error) {
	var u User
	err := d.orm.WithContext(ctx).Model(&User{}).Where("id = ?", uid).First(&u).Error
	if err != nil {
		return nil, err
	}
	if preload {
		if err = d.fillRoles(ctx, &u); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (d *DB) FindUserByUsername(ctx context.Context, username string, preload bool) (*User, error) {
	var u User
	err := d.orm.WithContext(ctx).Model(&User{}).Where("username = ?", username).First(&u).Error
	if err != nil {
		return nil, err
	}
	if preload {
		if err = d.fillRoles(ctx, &u); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (d *DB) fillRoles(ctx context.Context, u *User) error {
	roles, err := d.FindRolesByUserId(ctx, u.Id)
	if err != nil {
		return err
	}
	u.Roles = roles
	u.Authorities = fillAuthorities(roles)
	return nil
}

// UpdateUserWithId applies the column map to user uid and reports the number
// of rows the store touched. A unique index violation on username surfaces as
// ErrUsernameTaken.
func (d *DB) UpdateUserWithId(ctx context.Context, uid int64, m map[string]any) (int64, error) {
	if _, ok := m["update_time"]; !ok {
		m["update_time"] = time.Now()
	}
	res := d.orm.WithContext(ctx).Model(&User{}).Where("id = ?", uid).Updates(m)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateUserAndRole applies the column map to uid and replaces its role
// assignment with rid in one transaction.
func (d *DB) UpdateUserAndRole(ctx context.Context, uid int64, m map[string]any, rid int) (int64, error) {
	if _, ok := m["update_time"]; !ok {
		m["update_time"] = time.Now()
	}
	var rows int64
	err := d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&User{}).Where("id = ?", uid).Updates(m)
		if res.Error != nil {
			return translate(res.Error)
		}
		rows = res.RowsAffected
		return upsertRole(tx, uid, rid)
	})
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// PageUsers returns one page of users ordered by id, without password hashes.
// current starts at 1.
func (d *DB) PageUsers(ctx context.Context, filter UserFilter, current, size int) (*Page, error) {
	users := make([]User, 0)
	query := d.orm.WithContext(ctx).Model(&User{})
	query = BuildWhere(query, filter).Session(&gorm.Session{})
	var count int64
	err := query.Count(&count).Error
	if err != nil {
		return nil, err
	}
	var pages int64
	if count > 0 && size > 0 {
		pages = int64(math.Ceil(float64(count) / float64(size)))
	}
	// pages past the end are empty and never reach Offset
	if count > 0 && int64(current) <= pages {
		err = query.Omit("password").
			Order("id asc").
			Limit(size).
			Offset((current - 1) * size).
			Find(&users).Error
		if err != nil {
			return nil, err
		}
	}
	return &Page{
		Records: users,
		Total:   count,
		Size:    size,
		Current: current,
		Pages:   pages,
	}, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUsernameTaken
	}
	return err
}
