package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/MacJediWizard/tenancy/internal/apperr"
	"github.com/gin-gonic/gin"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RequestID         string `json:"request_id,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

// Envelope wraps every API response.
type Envelope struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// RespondOK writes a success envelope.
func RespondOK(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{OK: true, Data: data})
}

// AbortWithError writes the error envelope for err and aborts the chain.
// Internal errors are reported with a generic message only.
func AbortWithError(c *gin.Context, err error) {
	appErr := apperr.As(err)
	status := apperr.HTTPStatus(appErr.Kind)

	body := &ErrorBody{
		Code:      string(appErr.Kind),
		Message:   appErr.Message,
		RequestID: GetRequestID(c),
	}
	if appErr.Kind == apperr.KindInternal {
		body.Message = http.StatusText(http.StatusInternalServerError)
	}
	if appErr.Kind == apperr.KindRateLimited {
		secs := retryAfterSeconds(appErr)
		body.RetryAfterSeconds = secs
		c.Header("Retry-After", strconv.FormatInt(secs, 10))
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, Envelope{OK: false, Error: body})
}

// retryAfterSeconds rounds the retry hint up to whole seconds, at least one.
func retryAfterSeconds(e *apperr.Error) int64 {
	secs := int64(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
