package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/MacJediWizard/tenancy/internal/auth"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// withUser is a stand-in for AuthMiddleware that authenticates every request as id.
func withUser(id, email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(string(UserContextKey), &auth.Identity{ID: id, Email: email})
		c.Next()
	}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, w.Body.String())
	}
	return env
}
