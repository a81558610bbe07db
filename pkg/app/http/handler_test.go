package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/james-langridge/mars-vista-api-sub000/pkg/app/errors"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"service error", apperrors.ConflictError(nil, "run in progress"), http.StatusConflict, "run in progress"},
		{"rate limited", apperrors.TooManyRequestsError(nil, "slow down"), http.StatusTooManyRequests, "slow down"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "Unexpected Service Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HandleError(func(http.ResponseWriter, *http.Request) error { return tt.err }, zap.NewNop())
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.message, body.ErrMsg)
			assert.Equal(t, tt.code, body.ErrMsgCode)
		})
	}
}

type quotaErr struct{}

func (quotaErr) Error() string { return "quota exceeded" }

func (quotaErr) Details() map[string]any {
	return map[string]any{"limit": "hour", "error": "overwritten"}
}

func TestDefaultErrorHandler_Details(t *testing.T) {
	rec := httptest.NewRecorder()
	DefaultErrorHandler(rec, apperrors.TooManyRequestsError(quotaErr{}, "hourly rate limit exceeded"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"hourly rate limit exceeded","code":429,"limit":"hour"}`, rec.Body.String())
}

func TestHandleError_Success(t *testing.T) {
	h := HandleError(func(w http.ResponseWriter, _ *http.Request) error {
		WriteJSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
		return nil
	}, zap.NewNop())
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ok":"yes"}`, rec.Body.String())
}
