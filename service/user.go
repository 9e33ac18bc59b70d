package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"community-server/db"
	"community-server/infra"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 20
)

var (
	ErrUserNotExist     = infra.NewCodeError(infra.CodeUserNotExist)
	ErrUserAlreadyExist = infra.NewCodeError(infra.CodeUserAlreadyExist)
	ErrNoPermission     = infra.NewCodeError(infra.CodeNoPermission)
)

type UserStore interface {
	FindUserById(ctx context.Context, uid int64, preload bool) (*db.User, error)
	FindUserByUsername(ctx context.Context, username string, preload bool) (*db.User, error)
	UpdateUserWithId(ctx context.Context, uid int64, m map[string]any) (int64, error)
	PageUsers(ctx context.Context, filter db.UserFilter, current, size int) (*db.Page, error)
}

// RoleStore changes a user's role together with its user row.
type RoleStore interface {
	UpdateUserAndRole(ctx context.Context, uid int64, m map[string]any, rid int) (int64, error)
}

// Caller is the signed-in user a request runs as.
type Caller interface {
	Id() int64
	HasRole(role string) bool
	Check(permit string) infra.Decision
}

type InfoRequest struct {
	Id Optional[int64] `json:"id"`
}

type UpdateRequest struct {
	Id       Optional[int64]  `json:"id"`
	Avatar   Optional[string] `json:"avatar" validate:"omitempty,max=300"`
	Username Optional[string] `json:"username" validate:"omitempty,max=50"`
	Ban      Optional[bool]   `json:"ban"`
}

type UsersRequest struct {
	Current Optional[int]    `json:"current" validate:"omitempty,gte=0"`
	Size    Optional[int]    `json:"size" validate:"omitempty,gte=0"`
	Keyword Optional[string] `json:"keyword" validate:"omitempty,max=50"`
}

type UserService struct {
	users UserStore
	roles RoleStore
	log   *zap.Logger
	now   func() time.Time
}

func NewUserService(users UserStore, roles RoleStore, log *zap.Logger) *UserService {
	return &UserService{
		users: users,
		roles: roles,
		log:   log,
		now:   time.Now,
	}
}

// GetInfo returns the user named by req.Id, or the caller when no id is given.
// The password hash is never part of the result.
func (s *UserService) GetInfo(ctx context.Context, caller Caller, req InfoRequest) (*db.User, error) {
	u, err := s.find(ctx, req.Id.Or(caller.Id()))
	if err != nil {
		return nil, err
	}
	u.Password = ""
	return u, nil
}

// Update applies the supplied fields of req to the target user and returns the
// number of rows the store updated.
func (s *UserService) Update(ctx context.Context, caller Caller, req UpdateRequest) (int64, error) {
	id := req.Id.Or(caller.Id())
	if _, err := s.find(ctx, id); err != nil {
		return 0, err
	}
	if restrictedToSelf(caller) && id != caller.Id() {
		return 0, ErrNoPermission
	}

	fields := map[string]any{}
	if req.Avatar.Set {
		if req.Avatar.Null || isBlank(req.Avatar.Value) {
			fields["avatar"] = nil
		} else {
			fields["avatar"] = req.Avatar.Value
		}
	}
	if req.Username.Present() {
		username := req.Username.Value
		_, err := s.users.FindUserByUsername(ctx, username, false)
		switch {
		case err == nil:
			return 0, ErrUserAlreadyExist
		case !errors.Is(err, db.ErrRecordNotFound):
			return 0, err
		}
		if !isBlank(username) {
			fields["username"] = username
		}
	}
	role := 0
	if req.Ban.Present() {
		if err := caller.Check(db.PermitUserBan).Err(); err != nil {
			return 0, err
		}
		fields["banned"] = req.Ban.Value
		role = db.RoleUser
		if req.Ban.Value {
			role = db.RoleBanned
		}
	}
	fields["update_time"] = s.now()

	var rows int64
	var err error
	if role != 0 {
		rows, err = s.roles.UpdateUserAndRole(ctx, id, fields, role)
	} else {
		rows, err = s.users.UpdateUserWithId(ctx, id, fields)
	}
	if err != nil {
		if errors.Is(err, db.ErrUsernameTaken) {
			return 0, ErrUserAlreadyExist
		}
		return 0, err
	}
	if role != 0 {
		s.log.Info("user ban status changed",
			zap.Int64("operator", caller.Id()),
			zap.Int64("user", id),
			zap.Bool("banned", req.Ban.Value))
	}
	return rows, nil
}

// ListUsers pages through all users. Page size defaults to DefaultPageSize and
// never exceeds MaxPageSize.
func (s *UserService) ListUsers(ctx context.Context, caller Caller, req UsersRequest) (*db.Page, error) {
	if err := caller.Check(db.PermitUserQuery).Err(); err != nil {
		return nil, err
	}
	current := req.Current.Or(1)
	if current < 1 {
		current = 1
	}
	size := req.Size.Or(DefaultPageSize)
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	page, err := s.users.PageUsers(ctx, db.UserFilter{Keyword: req.Keyword.Or("")}, current, size)
	if err != nil {
		return nil, err
	}
	if users, ok := page.Records.([]db.User); ok {
		for i := range users {
			users[i].Password = ""
		}
	}
	return page, nil
}

func (s *UserService) find(ctx context.Context, id int64) (*db.User, error) {
	u, err := s.users.FindUserById(ctx, id, false)
	if errors.Is(err, db.ErrRecordNotFound) {
		return nil, ErrUserNotExist
	}
	return u, err
}

// restrictedToSelf holds for baseline users. A caller holding neither the
// baseline role nor an elevated one, a banned user for instance, is
// restricted the same way.
func restrictedToSelf(c Caller) bool {
	return c.HasRole(db.RoleCodeUser) || !isElevated(c)
}

func isElevated(c Caller) bool {
	return c.HasRole(db.RoleCodeAdmin) || c.HasRole(db.RoleCodeModerator)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
