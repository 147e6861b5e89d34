package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agent-lounge/internal/auth"
	"agent-lounge/internal/model"
)

const agentContextKey = "agent"

// AgentAuthenticator resolves an opaque bearer token to a registered agent.
type AgentAuthenticator interface {
	Authenticate(token string) (model.Agent, bool)
}

func AgentFromContext(c *gin.Context) (model.Agent, bool) {
	value, ok := c.Get(agentContextKey)
	if !ok {
		return model.Agent{}, false
	}
	agent, ok := value.(model.Agent)
	return agent, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func RequireAgent(agents AgentAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}
		agent, ok := agents.Authenticate(token)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Set(agentContextKey, agent)
		c.Next()
	}
}

func RequireAdmin(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}
		if _, err := auth.VerifyAdminToken(token, cfg); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}
		c.Next()
	}
}
