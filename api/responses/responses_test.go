package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"orderId": "o-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body successBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "o-1", body.Data.(map[string]any)["orderId"])
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-Id", "req-42")
	err := pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock").
		WithDetails(map[string]any{"product_id": "P1", "available": 0})
	WriteError(context.Background(), logger.Nop(), w, err)

	assert.Equal(t, http.StatusConflict, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeInsufficientStock), payload.Code)
	assert.Equal(t, "not enough stock", payload.Message)
	assert.Equal(t, "req-42", payload.RequestID)
	assert.False(t, payload.Retryable)
	assert.NotNil(t, payload.Details)
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeInternal), payload.Code)
	assert.Equal(t, "internal server error", payload.Message)
	assert.True(t, payload.Retryable)
	assert.Nil(t, payload.Details)
	assert.Empty(t, payload.RequestID)
}

func TestWriteErrorHidesPersistenceMessage(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.Wrap(pkgerrors.CodeOrderPersistenceFailed, errors.New("tx aborted"), "insert vendor group 2")
	WriteError(context.Background(), nil, w, err)

	payload := decodeError(t, w)
	assert.Equal(t, "order could not be placed", payload.Message)
}

func TestWriteErrorLogLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{name: "client error", err: pkgerrors.New(pkgerrors.CodeValidation, "bad"), level: "warn"},
		{name: "server error", err: errors.New("boom"), level: "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logg := logger.New(logger.Options{ServiceName: "test", Level: "debug", Output: buf})

			WriteError(context.Background(), logg, httptest.NewRecorder(), tc.err)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
			assert.Equal(t, tc.level, entry["level"])
			assert.NotEmpty(t, entry["error_chain"])
		})
	}
}
