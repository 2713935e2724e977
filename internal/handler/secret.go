package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tinikov/stockapi/internal/digest"
)

// DigestAuth returns a middleware that admits only requests carrying a valid
// digest reply. Everything else gets 401 and a fresh challenge.
func DigestAuth(auth *digest.Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := auth.Authenticate(c.Request.Context(),
			c.GetHeader("Authorization"), c.Request.Method, c.Request.URL.Path)
		if err == nil {
			RecordDigest(true)
			c.Next()
			return
		}

		var challenge *digest.ChallengeError
		if !errors.As(err, &challenge) {
			logger.Error("digest challenge", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal Server Error"})
			return
		}

		RecordDigest(false)
		logger.Info("digest challenge issued",
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)
		c.Header("WWW-Authenticate", challenge.Challenge)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Unauthorized"})
	}
}

// Welcome handles GET /.
func Welcome(c *gin.Context) {
	c.String(http.StatusOK, "Welcome to my simple web server")
}

// Secret handles GET /secret once DigestAuth has admitted the request.
func Secret(c *gin.Context) {
	c.String(http.StatusOK, "SUCCESS")
}
