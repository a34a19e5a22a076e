package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindExpired, http.StatusGone},
		{KindTooLarge, http.StatusRequestEntityTooLarge},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
		{Kind("bogus"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("accept invitation: %w", Conflict("invitation is no longer pending"))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("connection refused")))
}

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("organization not found"))
	assert.True(t, errors.Is(err, NotFound("")))
	assert.False(t, errors.Is(err, Conflict("")))
}

func TestAs_WrapsUnclassified(t *testing.T) {
	cause := errors.New("pool closed")
	got := As(cause)
	assert.Equal(t, KindInternal, got.Kind)
	assert.Equal(t, "internal server error", got.Message)
	assert.ErrorIs(t, got, cause)
}

func TestRateLimited(t *testing.T) {
	err := RateLimited(90 * time.Second)
	assert.Equal(t, KindRateLimited, err.Kind)
	assert.Equal(t, 90*time.Second, err.RetryAfter)
}
