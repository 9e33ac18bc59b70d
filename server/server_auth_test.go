package server

import (
	"net/http"
	"strings"
	"testing"

	"community-server/db"
)

func TestSign(t *testing.T) {
	srv, dbms := newTestServer(t)
	mustCreate(t, dbms, "alice", "secret", db.RoleUser)

	if env := call(t, srv, "/api/auth/sign", "", `{"username":"alice","password":"wrong"}`); env.Status != http.StatusUnauthorized {
		t.Errorf("bad password = %d", env.Status)
	}
	if env := call(t, srv, "/api/auth/sign", "", `{"username":"nobody","password":"secret"}`); env.Status != http.StatusUnauthorized {
		t.Errorf("unknown user = %d", env.Status)
	}
	if env := call(t, srv, "/api/auth/sign", "", `{"username":"alice"}`); env.Status != http.StatusBadRequest {
		t.Errorf("missing password = %d", env.Status)
	}
	signIn(t, srv, "alice", "secret")
}

func TestSignLockout(t *testing.T) {
	srv, dbms := newTestServer(t)
	mustCreate(t, dbms, "alice", "secret", db.RoleUser)

	// max_fails is 3 in the test config
	for i := 0; i < 3; i++ {
		call(t, srv, "/api/auth/sign", "", `{"username":"alice","password":"wrong"}`)
	}
	env := call(t, srv, "/api/auth/sign", "", `{"username":"alice","password":"secret"}`)
	if env.Status != http.StatusUnauthorized || !strings.Contains(string(env.Message), "locked") {
		t.Errorf("locked identity = %d %s", env.Status, env.Message)
	}
}

func TestLogout(t *testing.T) {
	srv, dbms := newTestServer(t)
	mustCreate(t, dbms, "alice", "secret", db.RoleUser)
	tk := signIn(t, srv, "alice", "secret")

	if env := call(t, srv, "/api/auth/logout", tk, ""); env.Code != "SUCCESS" {
		t.Fatalf("logout = %d %s", env.Status, env.Code)
	}
	if env := call(t, srv, "/api/user/info", tk, ""); env.Status != http.StatusUnauthorized {
		t.Errorf("token after logout = %d", env.Status)
	}
}

func TestUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, tk := range []string{"", "not-a-token"} {
		if env := call(t, srv, "/api/user/info", tk, ""); env.Status != http.StatusUnauthorized {
			t.Errorf("token %q = %d", tk, env.Status)
		}
	}
}

func TestGetRoles(t *testing.T) {
	srv, dbms := newTestServer(t)
	mustCreate(t, dbms, "admin", "secret", db.RoleAdmin)
	mustCreate(t, dbms, "mod", "secret", db.RoleModerator)

	env := call(t, srv, "/api/role/all", signIn(t, srv, "admin", "secret"), "")
	if env.Code != "SUCCESS" {
		t.Fatalf("admin roles = %d %s", env.Status, env.Code)
	}
	var roles []db.Role
	decode(t, env.Data, &roles)
	if len(roles) != 4 {
		t.Errorf("roles = %+v", roles)
	}

	env = call(t, srv, "/api/role/all", signIn(t, srv, "mod", "secret"), "")
	if env.Status != http.StatusForbidden {
		t.Errorf("moderator roles = %d", env.Status)
	}
}
