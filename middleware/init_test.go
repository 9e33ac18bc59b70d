package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"community-server/conf"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func newChainApp(t *testing.T, debug bool) *fiber.App {
	t.Helper()
	auth, cfg, _ := newTestAuthorization(t)
	app := fiber.New()
	Use(app, zap.NewNop(), &conf.AppConfig{Debug: debug}, cfg, auth)
	app.Post("/api/user/info", func(c *fiber.Ctx) error { return c.SendString(GetAuthentication(c).Principal()) })
	return app
}

func TestDebugRoutesOffByDefault(t *testing.T) {
	app := newChainApp(t, false)
	for _, path := range []string{"/debug/pprof/", "/debug/pprof/goroutine?debug=1", "/debug/pprof/heap", "/monitor"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, resp.StatusCode)
		}
	}

	// the filter still guards the api
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/user/info", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("POST /api/user/info = %d, want 401", resp.StatusCode)
	}
}

func TestDebugRoutesMounted(t *testing.T) {
	app := newChainApp(t, true)
	for _, path := range []string{"/debug/pprof/", "/monitor"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}
