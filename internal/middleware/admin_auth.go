package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/config"
	"github.com/stemsi/assessment-runner/internal/response"
	"golang.org/x/crypto/bcrypt"
)

// AdminRealm is announced in the Basic Auth challenge.
const AdminRealm = "Admin Area"

// RequireAdmin guards the admin area with HTTP Basic Auth. When the server
// has no admin credentials configured every request is refused with 500;
// the area never opens by accident.
func RequireAdmin(cfg *config.Config, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AdminConfigured() {
			log.Error().Msg("Admin request refused: admin credentials are not configured")
			response.AbortStatus(c, response.ErrAdminNotConfigured)
			return
		}

		user, pass, ok := c.Request.BasicAuth()
		if !ok || !adminCredentialsMatch(cfg, user, pass) {
			c.Header("WWW-Authenticate", `Basic realm="`+AdminRealm+`"`)
			response.AbortStatus(c, response.ErrUnauthorized)
			return
		}

		c.Next()
	}
}

func adminCredentialsMatch(cfg *config.Config, user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.AdminUsername)) == 1

	var passOK bool
	if cfg.AdminPasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(cfg.AdminPasswordHash), []byte(pass)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(pass), []byte(cfg.AdminPassword)) == 1
	}
	return userOK && passOK
}
