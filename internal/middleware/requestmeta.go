package middleware

import (
	"github.com/audit-trail/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

const (
	CtxClientIP   = "client_ip"
	CtxRequestURL = "request_url"
)

// RequestMetaMiddleware captures the client address and the requested URL so
// the audit service can stamp them onto every entry written during this
// request. The acting user is added by the auth middleware.
func RequestMetaMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(CtxClientIP, c.IP())
		c.Locals(CtxRequestURL, c.OriginalURL())
		return c.Next()
	}
}

// GetRequestMeta assembles the request context for audit enrichment.
func GetRequestMeta(c *fiber.Ctx) models.RequestMeta {
	ip, _ := c.Locals(CtxClientIP).(string)
	url, _ := c.Locals(CtxRequestURL).(string)
	return models.RequestMeta{
		IP:     ip,
		URL:    url,
		UserID: GetUserID(c),
	}
}
