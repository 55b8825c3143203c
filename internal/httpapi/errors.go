package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anotherai/gateway/runtime/apierror"
)

// errorEnvelope is the {error:{code,message,status_code}} body every failed
// request returns, per spec §7.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

// writeError maps err to its HTTP status and the error envelope. Any error
// that isn't an *apierror.Error is treated as an unclassified internal
// failure, logged with its full text since the client only ever sees
// "internal error".
func (s *Server) writeError(c *gin.Context, err error) {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		s.logger.Error(c.Request.Context(), "unclassified http handler error", "error", err)
		apiErr = apierror.New(apierror.KindInternal, "internal error")
	}
	c.JSON(apiErr.StatusCode, errorEnvelope{Error: errorBody{
		Code:       string(apiErr.Kind),
		Message:    apiErr.Message,
		StatusCode: apiErr.StatusCode,
	}})
}

// badRequest is a convenience for decode failures that never reach a
// service layer and so never get their own *apierror.Error.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorEnvelope{Error: errorBody{
		Code:       string(apierror.KindBadRequest),
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}})
}
