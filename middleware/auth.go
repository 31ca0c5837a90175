package middleware

import (
	"tracebrief/internal/auth"
	"tracebrief/internal/config"
	"tracebrief/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type SessionMiddleware struct {
	config *config.Config
	rdb    *redis.Client
}

func NewSessionMiddleware(cfg *config.Config, rdb *redis.Client) *SessionMiddleware {
	return &SessionMiddleware{
		config: cfg,
		rdb:    rdb,
	}
}

// RequireSession validates the bearer token minted at upload time and binds
// the session ID into the request context. Every document route runs behind
// it so one session can never read another session's documents.
func (s *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))

		if tokenString == "" {
			if cookie, err := c.Cookie("session_token"); err == nil {
				tokenString = cookie
			}
		}

		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Session token is required")
			c.Abort()
			return
		}

		claims, err := auth.ValidateSessionToken(tokenString, s.rdb)
		if err != nil {
			utils.RespondWithError(c, 401, "session_expired",
				"Your session has expired. Upload the document again to start a new one.",
				gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("session_id", claims.SessionID)
		c.Set("claims", claims)

		c.Next()
	})
}

// GetSessionID returns the session bound by RequireSession, or ""
func GetSessionID(c *gin.Context) string {
	if sessionID, exists := c.Get("session_id"); exists {
		if id, ok := sessionID.(string); ok {
			return id
		}
	}
	return ""
}
