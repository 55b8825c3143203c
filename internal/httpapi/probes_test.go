package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth_AlwaysOK(t *testing.T) {
	s := &Server{}
	c, rec := newTestContext()
	s.handleHealth(c)
	assert.Equal(t, 200, rec.Code)
}

func TestHandleProtectedResource_DescribesAuthServer(t *testing.T) {
	s := &Server{authServerURL: "https://auth.example.com"}
	c, rec := newTestContext()
	c.Request = httptest.NewRequest("GET", "https://gateway.example.com/.well-known/oauth-protected-resource", nil)
	c.Request.Host = "gateway.example.com"

	s.handleProtectedResource(c)

	assert.Equal(t, 200, rec.Code)
	var desc protectedResourceDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &desc))
	assert.Equal(t, "https://gateway.example.com", desc.Resource)
	assert.Equal(t, []string{"https://auth.example.com"}, desc.AuthorizationServers)
}

func TestHandleAuthorizationServerRedirect_RedirectsToUpstream(t *testing.T) {
	s := &Server{authServerURL: "https://auth.example.com"}
	c, rec := newTestContext()

	s.handleAuthorizationServerRedirect(c)

	assert.Equal(t, 307, rec.Code)
	assert.Equal(t, "https://auth.example.com/.well-known/oauth-authorization-server", rec.Header().Get("Location"))
}
