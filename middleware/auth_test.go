package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"community-server/conf"
	"community-server/db"
	"community-server/infra"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

const testKey = "test-key"

func newTestAuthorization(t *testing.T) (*infra.Authorization, *conf.AuthConfig, *db.DB) {
	t.Helper()
	dbms, err := db.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	cfg := &conf.AuthConfig{
		JwtKey:  testKey,
		JwtExp:  1,
		Permits: &conf.PermitSpec{
			Authentications: []*conf.AuthKV{
				{Url: "/user/info", Permit: "any|user info"},
				{Url: "/role/all", Permit: "role.query|list roles"},
			},
			WhiteList: []string{"/auth/sign|sign in"},
		},
	}
	auth := infra.NewAuthorization(cfg, dbms, infra.NewMemorySessionStore(), zap.NewNop())
	t.Cleanup(func() {
		auth.Close()
		_ = dbms.Close()
	})
	return auth, cfg, dbms
}

func newFilteredApp(t *testing.T) (*fiber.App, *db.DB) {
	t.Helper()
	auth, _, dbms := newTestAuthorization(t)
	app := fiber.New()
	app.Use(NewAuthFilter(auth))
	echo := func(c *fiber.Ctx) error {
		if a := GetAuthentication(c); a != nil {
			return c.SendString(a.Principal())
		}
		return c.SendString("anonymous")
	}
	app.Post("/api/user/info", echo)
	app.Post("/api/role/all", echo)
	app.Post("/api/auth/sign", echo)
	return app, dbms
}

func token(t *testing.T, claims infra.JWTClaims) string {
	t.Helper()
	tk, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testKey))
	if err != nil {
		t.Fatal(err)
	}
	return tk
}

func post(t *testing.T, app *fiber.App, path, tk string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if tk != "" {
		req.Header.Set("Authorization", "Bearer "+tk)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestAuthFilter(t *testing.T) {
	app, dbms := newFilteredApp(t)
	alice, err := dbms.CreateUser(context.Background(), &db.User{Username: "alice", Password: "x"}, db.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	// issued before the filter started, so the session is rebuilt from the db
	issued := jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	valid := token(t, infra.JWTClaims{Uid: alice.Id, Name: "alice", RegisteredClaims: jwt.RegisteredClaims{
		ID: "t1", IssuedAt: issued, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})

	if resp := post(t, app, "/api/auth/sign", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("white listed path = %d", resp.StatusCode)
	}
	if resp := post(t, app, "/api/user/info", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("missing token = %d", resp.StatusCode)
	}
	if resp := post(t, app, "/api/user/info", valid); resp.StatusCode != http.StatusOK {
		t.Errorf("valid token = %d", resp.StatusCode)
	}
	if resp := post(t, app, "/api/role/all", valid); resp.StatusCode != http.StatusForbidden {
		t.Errorf("missing permission = %d", resp.StatusCode)
	}

	expired := token(t, infra.JWTClaims{Uid: alice.Id, Name: "alice", RegisteredClaims: jwt.RegisteredClaims{
		ID: "t2", IssuedAt: issued, ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	resp := post(t, app, "/api/user/info", expired)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expired token = %d", resp.StatusCode)
	}
	renewed := resp.Header.Get("Authorization")
	if !strings.HasPrefix(renewed, "Bearer ") || renewed == "Bearer "+expired {
		t.Errorf("renewed header = %q", renewed)
	}
}

func TestExtractToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		tk, ok := extractToken(c)
		if !ok {
			return c.SendStatus(http.StatusUnauthorized)
		}
		return c.SendString(tk)
	})
	for header, want := range map[string]int{
		"Bearer abc": http.StatusOK,
		"bearer abc": http.StatusOK,
		"Basic abc":  http.StatusUnauthorized,
		"":           http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != want {
			t.Errorf("%q = %d, want %d", header, resp.StatusCode, want)
		}
	}
}
