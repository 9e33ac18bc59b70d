package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"community-server/conf"
	"community-server/db"
	"community-server/utils"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	PermitAny    = "any"
	PermitPublic = "*"
)

var (
	ErrBadCredentials = errors.New("bad username or password")
	ErrUserBanned     = errors.New("user has been banned")
	ErrIdentityLocked = errors.New("too many failed attempts")
	ErrTokenRevoked   = errors.New("token has been revoked")
)

type Authentication struct {
	uid             int64
	principal       string
	roles           *hashset.Set
	authorities     *hashset.Set
	isAuthenticated bool
}

func newAuthentication(s *Session) *Authentication {
	a := &Authentication{
		uid:             s.Uid,
		principal:       s.Name,
		roles:           hashset.New(),
		authorities:     hashset.New(),
		isAuthenticated: true,
	}
	for _, r := range s.Roles {
		a.roles.Add(r)
	}
	for _, p := range s.Authorities {
		a.authorities.Add(p)
	}
	return a
}

func (a *Authentication) Id() int64 {
	return a.uid
}

func (a *Authentication) Principal() string {
	return a.principal
}

func (a *Authentication) Authorities() *hashset.Set {
	return a.authorities
}

func (a *Authentication) IsAuthenticated() bool {
	return a.isAuthenticated
}

func (a *Authentication) HasRole(role string) bool {
	return a.roles.Contains(role)
}

// Check answers whether the caller holds permit.
func (a *Authentication) Check(permit string) Decision {
	switch {
	case !a.isAuthenticated:
		return Decision{Permit: permit, Reason: "not signed in"}
	case permit == PermitAny || a.authorities.Contains(permit):
		return Decision{Allowed: true, Permit: permit}
	}
	return Decision{Permit: permit, Reason: "missing permission " + permit}
}

type Decision struct {
	Allowed bool
	Permit  string
	Reason  string
}

// Err is nil for an allowed decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Permit: d.Permit, Reason: d.Reason}
}

// DeniedError is an authorization failure. It is answered with 403 rather
// than a result code.
type DeniedError struct {
	Permit string
	Reason string
}

func (e *DeniedError) Error() string {
	return "permission denied: " + e.Reason
}

type FailStatus struct {
	times int
	ut    time.Time
}

type Authorization struct {
	jwt           *JWT
	cfg           *conf.AuthConfig
	log           *zap.Logger
	db            *db.DB
	lock          sync.Mutex
	trie          *Trie
	sessions      SessionStore
	monitor       *time.Ticker
	quit          chan struct{}
	closeOnce     sync.Once
	started       time.Time
	lockList      map[string]time.Time
	loginFailList map[string]FailStatus
}

func NewAuthorization(cfg *conf.AuthConfig, dbms *db.DB, sessions SessionStore, log *zap.Logger) *Authorization {
	a := &Authorization{
		jwt:           NewJWT(cfg),
		db:            dbms,
		log:           log,
		cfg:           cfg,
		trie:          NewTrie(),
		sessions:      sessions,
		lockList:      map[string]time.Time{},
		loginFailList: map[string]FailStatus{},
		monitor:       time.NewTicker(time.Minute),
		quit:          make(chan struct{}),
		started:       time.Now().Truncate(time.Second),
	}
	if cfg.Permits != nil {
		for _, v := range cfg.Permits.Authentications {
			a.trie.Parse("/api"+v.Url, strings.Split(v.Permit, "|")[0])
		}
		for _, k := range cfg.Permits.WhiteList {
			a.trie.Parse("/api"+strings.Split(k, "|")[0], PermitPublic)
		}
	}
	go a.monitorTick()
	return a
}

func (a *Authorization) Close() {
	a.closeOnce.Do(func() {
		close(a.quit)
		if err := a.sessions.Close(); err != nil {
			a.log.Error("close session store", zap.Error(err))
		}
	})
}

func (a *Authorization) TrieSearch(path string) (bool, any, map[string]string) {
	match, err := a.trie.Match(path)
	if err != nil || match == nil || match.Node == nil {
		return false, nil, nil
	}
	return true, match.Node.Value, match.Params
}

func (a *Authorization) ParseToken(token string) (*JWTClaims, error) {
	return a.jwt.ParseToken(token)
}

func (a *Authorization) RefreshToken(token string) (string, *JWTClaims, error) {
	return a.jwt.RefreshToken(token)
}

// Authenticate verifies the credentials of username. Locked identities are
// refused before the password is looked at.
func (a *Authorization) Authenticate(ctx context.Context, username, password string) (*db.User, error) {
	if err := a.lockedErr(username); err != nil {
		return nil, err
	}
	user, err := a.db.FindUserByUsername(ctx, username, true)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(user.Password, password) {
		return nil, ErrBadCredentials
	}
	if user.Banned {
		return nil, ErrUserBanned
	}
	return user, nil
}

func (a *Authorization) OnAuthSuccessHandler(user *db.User, ctx *fiber.Ctx) error {
	a.lock.Lock()
	delete(a.loginFailList, user.Username)
	a.lock.Unlock()

	jwtId := utils.MustTokenId()
	roles := roleCodes(user.Roles)
	token, err := a.jwt.CreateToken(jwtId, user.Id, user.Username, roles)
	if err != nil {
		return FailWithMessage(http.StatusForbidden, "token gen failed:"+err.Error(), ctx)
	}
	err = a.sessions.Save(ctx.UserContext(), &Session{
		Id:          jwtId,
		Uid:         user.Id,
		Name:        user.Username,
		Roles:       roles,
		Authorities: user.Authorities,
		ExpireAt:    time.Now().Add(a.jwt.SessionLifetime()),
	})
	if err != nil {
		return err
	}
	return OkWithData(map[string]string{
		"username": user.Username,
		"tk":       token,
	}, ctx)
}

// OnAuthFailedHandler counts bad credentials per identity and locks the
// identity once auth.max_fails is reached.
func (a *Authorization) OnAuthFailedHandler(identify string, err error, ctx *fiber.Ctx) error {
	if !errors.Is(err, ErrBadCredentials) {
		return FailWithMessage(http.StatusUnauthorized, err.Error(), ctx)
	}
	a.lock.Lock()
	status := a.loginFailList[identify]
	status.times++
	status.ut = time.Now()
	a.loginFailList[identify] = status
	if status.times >= a.cfg.MaxFails && a.cfg.MaxFails > 0 {
		delete(a.loginFailList, identify)
		a.lockList[identify] = time.Now().Add(time.Duration(a.cfg.LockSeconds) * time.Second)
		a.log.Warn("identity locked after repeated sign in failures", zap.String("identify", identify))
	}
	a.lock.Unlock()
	if lockErr := a.lockedErr(identify); lockErr != nil {
		err = lockErr
	}
	return FailWithMessage(http.StatusUnauthorized, err.Error(), ctx)
}

func (a *Authorization) lockedErr(identify string) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	exp, ok := a.lockList[identify]
	if !ok {
		return nil
	}
	remain := time.Until(exp)
	if remain <= 0 {
		delete(a.lockList, identify)
		return nil
	}
	return fmt.Errorf("%w, account locked for %d more seconds", ErrIdentityLocked, int(remain.Seconds())+1)
}

func (a *Authorization) OnSignOutHandler(claim *JWTClaims, ctx *fiber.Ctx) error {
	if err := a.SignOut(ctx.UserContext(), claim); err != nil {
		return err
	}
	return OkWithData(claim.Name, ctx)
}

// SignOut kills the token behind claim. The revocation is written to the
// database first so that no later process rebuilds its session.
func (a *Authorization) SignOut(ctx context.Context, claim *JWTClaims) error {
	if err := a.db.RevokeToken(ctx, claim.ID, claim.Uid, a.tokenDeadline(claim)); err != nil {
		return err
	}
	return a.sessions.Delete(ctx, claim.ID)
}

// tokenDeadline is the last moment claim can still be refreshed.
func (a *Authorization) tokenDeadline(claim *JWTClaims) time.Time {
	if claim.IssuedAt == nil {
		return time.Now().Add(a.jwt.SessionLifetime())
	}
	return claim.IssuedAt.Time.Add(a.jwt.SessionLifetime())
}

// GetAuthentication resolves the session behind claim. A token issued before
// this process started may have lost its session with the old process, so
// that session is rebuilt from the database unless the token was revoked.
// Any other missing session was signed out or revoked.
func (a *Authorization) GetAuthentication(ctx context.Context, claim *JWTClaims) (*Authentication, error) {
	s, err := a.sessions.Load(ctx, claim.ID)
	if err == nil {
		return newAuthentication(s), nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	if claim.IssuedAt == nil || !claim.IssuedAt.Time.Before(a.started) {
		return nil, err
	}
	revoked, err := a.db.IsTokenRevoked(ctx, claim.ID, claim.Uid, claim.IssuedAt.Time)
	if err != nil {
		a.log.Error("GetAuthentication().IsTokenRevoked error", zap.Error(err))
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	u, err := a.db.FindUserById(ctx, claim.Uid, true)
	if err != nil {
		a.log.Error("GetAuthentication().FindUserById error", zap.Error(err))
		return nil, err
	}
	if u.Banned {
		return nil, ErrUserBanned
	}
	s = &Session{
		Id:          claim.ID,
		Uid:         u.Id,
		Name:        u.Username,
		Roles:       roleCodes(u.Roles),
		Authorities: u.Authorities,
		ExpireAt:    claim.IssuedAt.Time.Add(a.jwt.SessionLifetime()),
	}
	if err = a.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	return newAuthentication(s), nil
}

// RemoveAuthentication revokes every token uid holds so far and drops their
// sessions. The user has to sign in again to pick up changed roles.
func (a *Authorization) RemoveAuthentication(ctx context.Context, uid int64) error {
	if err := a.db.RevokeUserTokens(ctx, uid, time.Now().Add(a.jwt.SessionLifetime())); err != nil {
		return err
	}
	return a.sessions.DeleteByUser(ctx, uid)
}

func (a *Authorization) monitorTick() {
	defer a.monitor.Stop()
	for {
		select {
		case <-a.quit:
			return
		case now := <-a.monitor.C:
			a.cleanList(now)
			a.sessions.Sweep(context.Background(), now)
			if _, err := a.db.PurgeRevocations(context.Background(), now); err != nil {
				a.log.Warn("purge token revocations", zap.Error(err))
			}
		}
	}
}

func (a *Authorization) cleanList(now time.Time) {
	a.lock.Lock()
	defer a.lock.Unlock()
	for k, v := range a.loginFailList {
		if now.Sub(v.ut) > 100*time.Second {
			delete(a.loginFailList, k)
		}
	}
	for k, exp := range a.lockList {
		if now.After(exp) {
			delete(a.lockList, k)
		}
	}
}

func roleCodes(roles []db.Role) []string {
	codes := make([]string, 0, len(roles))
	for _, role := range roles {
		codes = append(codes, role.Code)
	}
	return codes
}
