package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"econsensus/config"
	"econsensus/middleware"
	"econsensus/models"
	"econsensus/testutil"
	"econsensus/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtectedTokenSources(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	tok, err := utils.GenerateJWTToken(alice)
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", middleware.Protected(db), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user").(*models.User).Username)
	})

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		path   string
		status int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, "/me", http.StatusOK},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token "+tok) }, "/me", http.StatusUnauthorized},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: tok}) }, "/me", http.StatusOK},
		{"query", func(r *http.Request) {}, "/me?token=" + tok, http.StatusOK},
		{"missing", func(r *http.Request) {}, "/me", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			tt.setup(req)
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	root := testutil.CreateUser(t, db, "root")
	require.NoError(t, db.Model(root).Update("is_admin", true).Error)

	app := fiber.New()
	app.Get("/admin", middleware.Protected(db), middleware.AdminOnly(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for user, status := range map[*models.User]int{alice: http.StatusForbidden, root: http.StatusNoContent} {
		tok, err := utils.GenerateJWTToken(user)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, user.Username)
	}
}

func TestWriteRateLimiter(t *testing.T) {
	config.AppConfig.RateLimitWrites = 2
	config.AppConfig.Redis.Enabled = false

	app := fiber.New()
	app.Use(middleware.WriteRateLimiter())
	app.All("/decisions", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(method string) int {
		resp, err := app.Test(httptest.NewRequest(method, "/decisions", nil), -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, send(http.MethodPost))
	assert.Equal(t, http.StatusOK, send(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost))
	// reads are never limited
	assert.Equal(t, http.StatusOK, send(http.MethodGet))
}

func TestCORS(t *testing.T) {
	newApp := func(cfg middleware.CORSConfig) *fiber.App {
		cfg.AllowedMethods = []string{"GET", "POST"}
		cfg.AllowedHeaders = []string{"Authorization"}
		cfg.MaxAge = 600
		app := fiber.New()
		app.Use(middleware.CORS(cfg))
		app.All("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
		return app
	}
	listed := newApp(middleware.CORSConfig{AllowedOrigins: []string{"https://app.example.org"}, AllowCredentials: true})
	open := newApp(middleware.CORSConfig{})
	openWithCredentials := newApp(middleware.CORSConfig{AllowCredentials: true})

	tests := []struct {
		name        string
		app         *fiber.App
		method      string
		origin      string
		preflight   bool
		status      int
		allowOrigin string
		allowMethod string
	}{
		{"listed preflight", listed, http.MethodOptions, "https://app.example.org", true, http.StatusNoContent, "https://app.example.org", "GET,POST"},
		{"unlisted preflight", listed, http.MethodOptions, "https://evil.example.org", true, http.StatusNoContent, "", ""},
		{"listed request", listed, http.MethodGet, "https://app.example.org", false, http.StatusOK, "https://app.example.org", ""},
		{"unlisted request", listed, http.MethodGet, "https://evil.example.org", false, http.StatusOK, "", ""},
		{"plain options reaches handler", listed, http.MethodOptions, "https://app.example.org", false, http.StatusOK, "https://app.example.org", ""},
		{"wildcard", open, http.MethodGet, "https://any.example.org", false, http.StatusOK, "*", ""},
		{"wildcard with credentials echoes origin", openWithCredentials, http.MethodGet, "https://any.example.org", false, http.StatusOK, "https://any.example.org", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			resp, err := tt.app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.allowOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.allowMethod, resp.Header.Get("Access-Control-Allow-Methods"))
			if tt.allowMethod != "" {
				assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
			}
			if tt.app == listed {
				assert.Equal(t, "Origin", resp.Header.Get("Vary"))
			}
		})
	}
}
