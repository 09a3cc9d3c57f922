package middleware

import (
	"strconv"
	"strings"

	"econsensus/config"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig defines the config for CORS middleware
type CORSConfig struct {
	// AllowedOrigins is a list of origins a cross-domain request can be executed from
	AllowedOrigins []string

	// AllowCredentials indicates whether the request can include user credentials
	AllowCredentials bool

	// AllowedMethods is a list of methods the client is allowed to use
	AllowedMethods []string

	// AllowedHeaders is a list of non-simple headers the client is allowed to use
	AllowedHeaders []string

	// ExposedHeaders indicates which headers are safe to expose to the API of a CORS API specification
	ExposedHeaders []string

	// MaxAge indicates how long (in seconds) the results of a preflight request can be cached
	MaxAge int
}

// DefaultCORSConfig allows the configured frontend origins
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins:   config.AppConfig.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		MaxAge:           3600,
	}
}

// CORS creates a new CORS middleware handler
func CORS(override ...CORSConfig) fiber.Handler {
	cfg := DefaultCORSConfig()
	if len(override) > 0 {
		cfg = override[0]
	}

	// Origin lookup set
	allowedOrigins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	allowedMethods := strings.Join(cfg.AllowedMethods, ",")
	allowedHeaders := strings.Join(cfg.AllowedHeaders, ",")
	exposedHeaders := strings.Join(cfg.ExposedHeaders, ",")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)

		// An empty list allows every origin. Credentials require echoing it instead of "*"
		allowed := origin != ""
		if len(allowedOrigins) > 0 {
			c.Vary(fiber.HeaderOrigin)
			_, allowed = allowedOrigins[origin]
		}

		if allowed {
			if len(allowedOrigins) == 0 && !cfg.AllowCredentials {
				c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
			} else {
				c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
			}
			if cfg.AllowCredentials {
				c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
			}
			if exposedHeaders != "" {
				c.Set(fiber.HeaderAccessControlExposeHeaders, exposedHeaders)
			}
		}

		// Only preflights are answered here
		if c.Method() != fiber.MethodOptions || c.Get(fiber.HeaderAccessControlRequestMethod) == "" {
			return c.Next()
		}
		if !allowed {
			return c.SendStatus(fiber.StatusNoContent)
		}
		c.Set(fiber.HeaderAccessControlAllowMethods, allowedMethods)
		c.Set(fiber.HeaderAccessControlAllowHeaders, allowedHeaders)
		c.Set(fiber.HeaderAccessControlMaxAge, maxAge)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
