package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceError_StatusCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{BadRequestError(nil, "bad lookback"), http.StatusBadRequest},
		{UnAuthorizedError(nil, "missing token"), http.StatusUnauthorized},
		{ForbiddenError(nil, "operator credential required"), http.StatusForbidden},
		{ResourceNotFoundError(nil, "unknown source"), http.StatusNotFound},
		{ConflictError(nil, "run in progress"), http.StatusConflict},
		{TooManyRequestsError(nil, "hourly limit"), http.StatusTooManyRequests},
		{GeneralError(nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var svcErr *ServiceError
		if assert.True(t, errors.As(tt.err, &svcErr)) {
			assert.Equal(t, tt.code, svcErr.StatusCode(), svcErr.Category.String())
		}
	}
}

func TestServiceError_WrapsCause(t *testing.T) {
	cause := errors.New("db down")
	err := fmt.Errorf("handler: %w", GeneralError(cause))

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, CategoryGeneralError))
	assert.False(t, Is(err, CategoryDataError))
	assert.True(t, IsInternalError(err))
	assert.False(t, IsInternalError(ConflictError(nil, "busy")))
	assert.False(t, IsInternalError(TooManyRequestsError(nil, "slow down")))
	assert.True(t, IsInternalError(cause))
}
