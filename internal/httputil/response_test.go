package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp["error"]
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad") }, http.StatusBadRequest, "bad"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, "gone"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "idle") }, http.StatusServiceUnavailable, "idle"},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.msg, decodeError(t, rec))
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]float64{"velocity": 0.25})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"velocity":0.25}`, rec.Body.String())
}

func TestWriteJSONUnencodable(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, make(chan int))

	// Status is already committed when encoding fails.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		Velocity float64 `json:"velocity"`
	}
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr string
	}{
		{name: "ok", in: `{"velocity": -0.3}`, want: -0.3},
		{name: "empty", in: ``, wantErr: "empty body"},
		{name: "unknown field", in: `{"speed": 1}`, wantErr: "unknown field"},
		{name: "trailing", in: `{"velocity": 1}{}`, wantErr: "unexpected data"},
		{name: "malformed", in: `{"velocity":`, wantErr: "unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.in))
			var got body
			err := DecodeJSON(httptest.NewRecorder(), req, &got)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Velocity)
		})
	}
}

func TestDecodeJSONTooLarge(t *testing.T) {
	t.Parallel()

	big := `{"velocity": 1, "pad": "` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var v map[string]any
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), req, &v))
}
