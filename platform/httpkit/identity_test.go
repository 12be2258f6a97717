package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newIdentityContext(t *testing.T) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/conversations/x/send", nil)
	return c
}

func TestGetAgentIgnoresHeadersForTokenCallers(t *testing.T) {
	c := newIdentityContext(t)
	c.Set(ContextAgentIDKey, "ana@example.com")
	c.Set(ContextAgentNameKey, "Ana")
	c.Request.Header.Set("X-Agent-Id", "bruno@example.com")
	c.Request.Header.Set("X-Agent-Name", "Bruno")

	agent := GetAgent(c)
	if agent.ID != "ana@example.com" || agent.Name() != "Ana" {
		t.Fatalf("JWT callers must act as their token subject, got %+v", agent)
	}
}

func TestGetAgentHonorsHeadersForServiceCallers(t *testing.T) {
	c := newIdentityContext(t)
	c.Set(ContextServiceCallKey, true)
	c.Request.Header.Set("X-Agent-Id", "bruno@example.com")
	c.Request.Header.Set("X-Agent-Name", "Bruno")

	agent := GetAgent(c)
	if agent.ID != "bruno@example.com" || agent.Name() != "Bruno" {
		t.Fatalf("expected header identity for admin-token callers, got %+v", agent)
	}
}

func TestMustGetAgentRejectsMissingIdentity(t *testing.T) {
	c := newIdentityContext(t)
	c.Set(ContextServiceCallKey, true)

	if _, ok := MustGetAgent(c); ok {
		t.Fatalf("expected missing identity to be rejected")
	}
}
