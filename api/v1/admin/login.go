package admin

import (
	"time"

	"go_cfgsync/internal/auth"
	"go_cfgsync/internal/httpx"

	"github.com/gin-gonic/gin"
)

// LoginResponse carries an admin session token
type LoginResponse struct {
	OK        bool   `json:"ok"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

// LoginHandler exchanges HTTP Basic admin credentials for a session token.
// Routed only when session tokens are configured.
func LoginHandler(admin *auth.Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !admin.CheckBasic(user, pass) {
			httpx.FailErr(c, httpx.ErrUnauthorized("invalid credentials"))
			return
		}

		token, expireAt, err := admin.Sessions().Generate(user, time.Now())
		if err != nil {
			httpx.FailErr(c, httpx.ErrInternalError("failed to generate token", err))
			return
		}

		httpx.OK(c, LoginResponse{
			OK:        true,
			Token:     token,
			ExpiresAt: expireAt.UTC().Format(time.RFC3339),
		})
	}
}
