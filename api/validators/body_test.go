package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type sampleLine struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type samplePayload struct {
	Email    string       `json:"email" validate:"required,email"`
	Currency string       `json:"currency" validate:"omitempty,len=3"`
	Lines    []sampleLine `json:"lines" validate:"dive"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"valid", `{"email":"a@b.co","lines":[{"sku":"x","quantity":2}]}`, ""},
		{"unknown field", `{"email":"a@b.co","extra":1}`, "extra"},
		{"wrong type", `{"email":"a@b.co","lines":[{"sku":"x","quantity":"two"}]}`, "lines.quantity"},
		{"malformed", `{"email":`, ""},
		{"empty", ``, ""},
		{"trailing document", `{"email":"a@b.co"} {"email":"c@d.co"}`, ""},
		{"bad email", `{"email":"nope"}`, "email"},
		{"currency length", `{"email":"a@b.co","currency":"EURO"}`, "currency"},
		{"nested quantity", `{"email":"a@b.co","lines":[{"sku":"x","quantity":1},{"sku":"y","quantity":0}]}`, "lines[1].quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst samplePayload
			err := DecodeJSONBody(req, &dst)
			if tt.name == "valid" {
				require.NoError(t, err)
				assert.Equal(t, 2, dst.Lines[0].Quantity)
				return
			}
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
			if tt.field == "" {
				return
			}
			details, ok := pkgerrors.As(err).Details().(map[string]any)
			require.True(t, ok, "details %#v", pkgerrors.As(err).Details())
			assert.Equal(t, tt.field, details["field"])
		})
	}
}

func TestDecodeJSONBodyRejectsOversizedBodies(t *testing.T) {
	body := `{"email":"` + strings.Repeat("a", MaxBodyBytes) + `@b.co"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dst samplePayload
	err := DecodeJSONBody(req, &dst)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&bad=x&big=1000", nil)
	v, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, v)

	_, err = ParseQueryInt(req, "bad", 25, 1, 100)
	assert.Error(t, err)
	_, err = ParseQueryInt(req, "big", 25, 1, 100)
	assert.Error(t, err)
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	var got uuid.UUID
	var gotErr error
	router := chi.NewRouter()
	router.Get("/orders/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = PathUUID(r, "orderId")
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/"+id.String(), nil))
	require.NoError(t, gotErr)
	assert.Equal(t, id, got)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil))
	assert.True(t, pkgerrors.IsCode(gotErr, pkgerrors.CodeValidation))
}
