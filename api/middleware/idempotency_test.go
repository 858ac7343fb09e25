package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

func newReplayStore(t *testing.T) (*pkgredis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func orderRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{"/api/v1/orders"}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&payload))
	return payload.Error.Code
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func TestReplayTTL(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		ok     bool
	}{
		{"place order", http.MethodPost, "/api/v1/orders", true},
		{"trailing slash", http.MethodPost, "/api/v1/orders/", true},
		{"get order", http.MethodGet, "/api/v1/orders/123", false},
		{"buyer list", http.MethodGet, "/api/v1/buyer/orders", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ttl, ok := replayTTL(httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, orderReplayTTL, ttl)
			}
		})
	}
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	store, srv := newReplayStore(t)
	h := &countingHandler{status: http.StatusCreated}
	mw := Idempotency(store, nil)(h)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, orderRequest(`{"lines":[]}`, ""))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 2, h.calls)
	assert.Empty(t, srv.Keys())
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store, srv := newReplayStore(t)
	h := &countingHandler{status: http.StatusCreated}
	mw := Idempotency(store, nil)(h)

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, orderRequest(`{"foo":"bar"}`, "abc"))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	keys := srv.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, orderReplayTTL, srv.TTL(keys[0]))

	replay := httptest.NewRecorder()
	mw.ServeHTTP(replay, orderRequest(`{"foo":"bar"}`, "abc"))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, `{"ok":true}`, replay.Body.String())
	assert.Equal(t, 1, h.calls)
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	store, _ := newReplayStore(t)
	h := &countingHandler{status: http.StatusCreated}
	mw := Idempotency(store, nil)(h)

	for _, buyer := range []uuid.UUID{uuid.New(), uuid.New()} {
		req := orderRequest(`{"foo":"bar"}`, "shared")
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: buyer, Role: enums.ActorRoleBuyer}))
		mw.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, h.calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store, srv := newReplayStore(t)
	h := &countingHandler{status: http.StatusServiceUnavailable}
	mw := Idempotency(store, nil)(h)

	mw.ServeHTTP(httptest.NewRecorder(), orderRequest(`{}`, "retry-me"))
	assert.Empty(t, srv.Keys())

	mw.ServeHTTP(httptest.NewRecorder(), orderRequest(`{}`, "retry-me"))
	assert.Equal(t, 2, h.calls, "retry after 5xx reaches the handler")
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	store, _ := newReplayStore(t)
	h := &countingHandler{status: http.StatusOK}
	mw := Idempotency(store, nil)(h)

	mw.ServeHTTP(httptest.NewRecorder(), orderRequest(`{"foo":"bar"}`, "xyz"))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, orderRequest(`{"foo":"diff"}`, "xyz"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec.Body))
	assert.Equal(t, 1, h.calls)
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store, srv := newReplayStore(t)
	h := &countingHandler{status: http.StatusCreated}
	mw := Idempotency(store, nil)(h)

	body := `{"foo":"bar"}`
	req := orderRequest(body, "busy")
	pending, err := json.Marshal(replayRecord{State: replayPending, RequestHash: requestHash([]byte(body))})
	require.NoError(t, err)
	require.NoError(t, srv.Set(store.IdempotencyKey(replayScope(req), "busy"), string(pending)))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, rec.Body))
	assert.Zero(t, h.calls)
}

func TestIdempotencyRejectsOversizedKey(t *testing.T) {
	store, _ := newReplayStore(t)
	h := &countingHandler{status: http.StatusCreated}

	rec := httptest.NewRecorder()
	Idempotency(store, nil)(h).ServeHTTP(rec, orderRequest(`{}`, strings.Repeat("k", maxIdempotencyKeyLen+1)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec.Body))
	assert.Zero(t, h.calls)
}

func TestInFlightReservationExpires(t *testing.T) {
	store, srv := newReplayStore(t)
	ok, err := reserve(context.Background(), store, "k", "hash")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inFlightTTL, srv.TTL("k"))

	srv.FastForward(inFlightTTL + time.Second)
	assert.False(t, srv.Exists("k"))
}
