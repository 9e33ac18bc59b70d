package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"community-server/conf"
	"community-server/db"
	"community-server/infra"
	"community-server/utils"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

type envelope struct {
	Status  int                 `json:"status"`
	Code    string              `json:"code"`
	Message jsoniter.RawMessage `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*CommunityServer, *db.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbms, err := db.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), zap.NewNop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	permits, err := conf.LoadPermits("../conf/permit.yml")
	if err != nil {
		t.Fatalf("load permits: %v", err)
	}
	cfg := &conf.GConfig{
		AppCfg:  &conf.AppConfig{HttpAddr: ":0"},
		LogCfg:  &conf.LogConfig{Level: "info"},
		AuthCfg: &conf.AuthConfig{
			JwtKey:      "test-key",
			JwtExp:      1,
			Session:     "memory",
			MaxFails:    3,
			LockSeconds: 60,
			Permits:     permits,
		},
	}
	srv, err := NewServer(cfg, zap.NewNop(), dbms, infra.NewMemorySessionStore())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() {
		srv.auth.Close()
		_ = dbms.Close()
	})
	return srv, dbms
}

func mustCreate(t *testing.T, dbms *db.DB, username, password string, rid int) *db.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	u, err := dbms.CreateUser(context.Background(), &db.User{Username: username, Password: hash}, rid)
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return u
}

func call(t *testing.T, srv *CommunityServer, path, token, body string) envelope {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err = json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s: decode: %v", path, err)
	}
	if env.Status != resp.StatusCode {
		t.Errorf("%s: envelope status %d, http status %d", path, env.Status, resp.StatusCode)
	}
	return env
}

func signIn(t *testing.T, srv *CommunityServer, username, password string) string {
	t.Helper()
	env := call(t, srv, "/api/auth/sign", "", `{"username":"`+username+`","password":"`+password+`"}`)
	if env.Status != http.StatusOK {
		t.Fatalf("sign in %s: %d %s", username, env.Status, env.Message)
	}
	var data struct {
		Username string `json:"username"`
		Tk       string `json:"tk"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Tk == "" {
		t.Fatalf("sign in %s: empty token", username)
	}
	return data.Tk
}

func decode(t *testing.T, raw []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}
