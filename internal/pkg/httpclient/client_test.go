package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["product_id"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"product_id required"}`))
			return
		}
		_, _ = w.Write([]byte(`{"amount":250}`))
	}))
	defer srv.Close()

	c := NewClient(noop.NewTracerProvider().Tracer("test"))

	var out struct {
		Amount float64 `json:"amount"`
	}
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, map[string]string{"product_id": "p1"}, &out))
	assert.Equal(t, 250.0, out.Amount)

	err := c.PostJSON(context.Background(), srv.URL, map[string]string{}, &out)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
	assert.JSONEq(t, `{"error":"product_id required"}`, string(statusErr.Body))
}
