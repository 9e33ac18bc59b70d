package db

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// TokenRevocation outlives the session store. A row with JwtId set kills one
// signed out token; a row without one kills every token of UserId issued at
// or before RevokedAt. Times are unix seconds, matching jwt precision.
type TokenRevocation struct {
	Id        int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	JwtId     string `json:"jwt_id" gorm:"type:varchar(64);not null;default:'';index"`
	UserId    int64  `json:"user_id" gorm:"not null;index"`
	RevokedAt int64  `json:"revoked_at" gorm:"not null"`
	ExpireAt  int64  `json:"expire_at" gorm:"not null;index"`
}

// RevokeToken records the sign out of token jwtId until expireAt.
func (d *DB) RevokeToken(ctx context.Context, jwtId string, uid int64, expireAt time.Time) error {
	return d.orm.WithContext(ctx).Create(&TokenRevocation{
		JwtId:     jwtId,
		UserId:    uid,
		RevokedAt: time.Now().Unix(),
		ExpireAt:  expireAt.Unix(),
	}).Error
}

// RevokeUserTokens kills every token of uid issued up to now.
func (d *DB) RevokeUserTokens(ctx context.Context, uid int64, expireAt time.Time) error {
	return d.orm.WithContext(ctx).Create(&TokenRevocation{
		UserId:    uid,
		RevokedAt: time.Now().Unix(),
		ExpireAt:  expireAt.Unix(),
	}).Error
}

// IsTokenRevoked reports whether the token jwtId of uid, issued at issuedAt,
// was signed out or revoked with all tokens of its user. A token without an
// id is never trusted.
func (d *DB) IsTokenRevoked(ctx context.Context, jwtId string, uid int64, issuedAt time.Time) (bool, error) {
	if jwtId == "" {
		return true, nil
	}
	match := d.orm.Session(&gorm.Session{NewDB: true}).
		Where("jwt_id = ?", jwtId).
		Or("jwt_id = '' AND user_id = ? AND revoked_at >= ?", uid, issuedAt.Unix())
	var count int64
	err := d.orm.WithContext(ctx).Model(&TokenRevocation{}).
		Where("expire_at > ?", time.Now().Unix()).
		Where(match).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PurgeRevocations drops rows whose tokens can no longer be presented.
func (d *DB) PurgeRevocations(ctx context.Context, now time.Time) (int64, error) {
	res := d.orm.WithContext(ctx).Where("expire_at <= ?", now.Unix()).Delete(&TokenRevocation{})
	return res.RowsAffected, res.Error
}
