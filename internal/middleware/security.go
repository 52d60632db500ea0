package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// SecurityConfig holds the response headers of a JSON api that serves personal data.
type SecurityConfig struct {
	// HSTSMaxAge is sent only when positive; leave it zero behind plain http.
	HSTSMaxAge int
	// NoStore keeps balances and reservations out of shared caches.
	NoStore bool
}

// DefaultSecurityConfig turns HSTS on for production.
func DefaultSecurityConfig(production bool) SecurityConfig {
	cfg := SecurityConfig{NoStore: true}
	if production {
		cfg.HSTSMaxAge = 31536000
	}
	return cfg
}

// SecurityHeaders sets the headers before the handler runs. Streaming handlers may
// replace Cache-Control afterwards.
func SecurityHeaders(config SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.HSTSMaxAge > 0 {
			c.Header("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", config.HSTSMaxAge))
		}
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		// nothing here is meant to be rendered by a browser
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if config.NoStore {
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}
