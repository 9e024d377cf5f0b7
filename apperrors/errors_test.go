package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodePromptRejected, http.StatusUnprocessableEntity},
		{CodeInsufficientListenTime, http.StatusUnprocessableEntity},
		{CodeNoEligibleSystems, http.StatusConflict},
		{CodeUnreachable, http.StatusBadGateway},
		{CodeGenerateFailed, http.StatusBadGateway},
		{CodeBatchTimeout, http.StatusGatewayTimeout},
		{CodeConflict, http.StatusOK},
		{CodeInternal, http.StatusInternalServerError},
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeBusy, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			e := New(tt.code, "op", "msg", nil)
			assert.Equal(t, tt.want, e.HTTPStatus())
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Unreachable("op", nil).Retryable())
	assert.True(t, BatchTimeout("op").Retryable())
	assert.True(t, Busy("op").Retryable())
	assert.False(t, Validation("op", "bad").Retryable())
	assert.False(t, GenerateFailed("op", nil).Retryable())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	e := Unreachable("genclient.Generate", cause)
	require.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "boom")
}

func TestErrorWithoutCause(t *testing.T) {
	e := Validation("registry.Lookup", "unknown system key")
	assert.Equal(t, "registry.Lookup: unknown system key", e.Error())
	assert.Nil(t, e.Unwrap())
}
