package infra

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"community-server/conf"

	"github.com/golang-jwt/jwt/v4"
)

const maxRefreshTimes = 7

type JWT struct {
	SigningKey []byte
	Expires    time.Duration
}

type JWTClaims struct {
	Uid          int64  `json:"uid,string"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role,omitempty"`
	RefreshTimes int    `json:"refreshTimes"`
	jwt.RegisteredClaims
}

func (c *JWTClaims) Roles() []string {
	if c.Role == "" {
		return nil
	}
	return strings.Split(c.Role, ",")
}

var (
	ErrTokenExpired     = errors.New("token is expired")
	ErrTokenNotValidYet = errors.New("token not active yet")
	ErrTokenMalformed   = errors.New("that's not even a token")
	ErrTokenInvalid     = errors.New("couldn't handle this token")
	ErrTooManyRefreshes = errors.New("token refreshed too many times, sign in again")
)

func NewJWT(config *conf.AuthConfig) *JWT {
	return &JWT{
		SigningKey: []byte(config.JwtKey),
		Expires:    time.Duration(config.JwtExp) * time.Hour,
	}
}

// SessionLifetime covers a token and all of its refreshes.
func (j *JWT) SessionLifetime() time.Duration {
	return j.Expires * (maxRefreshTimes + 1)
}

func (j *JWT) CreateToken(jwtId string, uid int64, name string, roles []string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Uid:  uid,
		Name: name,
		Role: strings.Join(roles, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jwtId,
			Subject:   strconv.FormatInt(uid, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.Expires)),
			Issuer:    "community",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.SigningKey)
}

func (j *JWT) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrTokenInvalid
	}
	return j.SigningKey, nil
}

func (j *JWT) ParseToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, j.keyFunc)
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) {
			switch {
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, ErrTokenMalformed
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, ErrTokenExpired
			case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
				return nil, ErrTokenNotValidYet
			}
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrTokenInvalid
}

// RefreshToken re-signs an expired but otherwise valid token with a new expiry.
func (j *JWT) RefreshToken(tokenString string) (string, *JWTClaims, error) {
	claims := &JWTClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, j.keyFunc)
	if err != nil {
		var ve *jwt.ValidationError
		if !errors.As(err, &ve) || ve.Errors != jwt.ValidationErrorExpired {
			return "", nil, ErrTokenInvalid
		}
	}
	if claims.RefreshTimes >= maxRefreshTimes {
		return "", nil, ErrTooManyRefreshes
	}
	claims.RefreshTimes++
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(j.Expires))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.SigningKey)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}
