// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Agent is the authenticated caller of an admin operation: a human agent
// (from a JWT) or a service caller (admin token plus X-Agent-Id headers).
type Agent struct {
	ID          string
	DisplayName string
}

// Authenticated reports whether a caller identity is present.
func (a Agent) Authenticated() bool {
	return a.ID != ""
}

// Name returns the display name, falling back to the agent id.
func (a Agent) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ID
}

// GetAgent extracts the acting agent from a Gin context. X-Agent-Id and
// X-Agent-Name headers are honored only for admin-token service callers;
// JWT-authenticated requests always act as their token subject.
func GetAgent(c *gin.Context) Agent {
	if c.GetBool(ContextServiceCallKey) {
		return Agent{
			ID:          strings.TrimSpace(c.GetHeader("X-Agent-Id")),
			DisplayName: strings.TrimSpace(c.GetHeader("X-Agent-Name")),
		}
	}

	var agent Agent
	if v, ok := c.Get(ContextAgentIDKey); ok {
		agent.ID, _ = v.(string)
	}
	if v, ok := c.Get(ContextAgentNameKey); ok {
		agent.DisplayName, _ = v.(string)
	}
	return agent
}

// MustGetAgent extracts the acting agent from a Gin context.
// If no identity is present, it aborts with 400 and returns false.
func MustGetAgent(c *gin.Context) (Agent, bool) {
	agent := GetAgent(c)
	if !agent.Authenticated() {
		Error(c, http.StatusBadRequest, "BAD_REQUEST", "agent_id is required", nil)
		c.Abort()
		return Agent{}, false
	}
	return agent, true
}
