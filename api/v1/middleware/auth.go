package middleware

import (
	"go_cfgsync/internal/auth"
	"go_cfgsync/internal/httpx"

	"github.com/gin-gonic/gin"
)

// AdminSubjectKey holds who passed admin auth: "token", a session username or a Basic user
const AdminSubjectKey = "admin_subject"

// SyncAuth requires "Authorization: Bearer <token>" with the device sync secret
func SyncAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok || !auth.SecretEqual(given, token) {
			httpx.FailErr(c, httpx.ErrUnauthorized(""))
			return
		}
		c.Next()
	}
}

// AdminAuth accepts the admin token, an admin session token or HTTP Basic credentials
func AdminAuth(admin *auth.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := admin.Authorize(c.GetHeader("Authorization"))
		if !ok {
			httpx.FailErr(c, httpx.ErrUnauthorized(""))
			return
		}
		c.Set(AdminSubjectKey, subject)
		c.Next()
	}
}
