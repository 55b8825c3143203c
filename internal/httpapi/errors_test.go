package httpapi

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/telemetry"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest("GET", "/", nil)
	return c, rec
}

func TestWriteError_ClassifiedErrorPreservesEnvelope(t *testing.T) {
	s := &Server{logger: telemetry.NewNoopLogger()}
	c, rec := newTestContext()

	s.writeError(c, apierror.NotFound("view", "view %q not found", "abc"))

	assert.Equal(t, 404, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "object_not_found", envelope.Error.Code)
	assert.Equal(t, 404, envelope.Error.StatusCode)
}

func TestWriteError_UnclassifiedErrorBecomesInternal(t *testing.T) {
	s := &Server{logger: telemetry.NewNoopLogger()}
	c, rec := newTestContext()

	s.writeError(c, errors.New("boom"))

	assert.Equal(t, 500, rec.Code)

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "internal", envelope.Error.Code)
	assert.NotContains(t, envelope.Error.Message, "boom", "the raw error should not leak to the client")
}

func TestBadRequest_WritesEnvelope(t *testing.T) {
	c, rec := newTestContext()

	badRequest(c, "slug is required")

	assert.Equal(t, 400, rec.Code)
	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "slug is required", envelope.Error.Message)
}
