package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/askdb/pkg/schema"
)

func newTestServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": "SELECT 1"}},
		},
	})
	defer srv.Close()

	c, err := NewOpenAIClient("test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), Request{System: "sys", User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", text)
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
	}{
		{"rate limited", http.StatusTooManyRequests, map[string]any{"error": map[string]any{"message": "slow down"}}},
		{"server error", http.StatusInternalServerError, map[string]any{"error": map[string]any{"message": "boom"}}},
		{"no choices", http.StatusOK, map[string]any{"choices": []any{}}},
		{
			"empty content",
			http.StatusOK,
			map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": ""}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body)
			defer srv.Close()

			c, err := NewOpenAIClient("test-key", WithBaseURL(srv.URL))
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), Request{User: "hi"})
			require.Error(t, err)

			var qerr *schema.QueryError
			require.ErrorAs(t, err, &qerr)
			assert.Equal(t, schema.ErrCodeLLMClient, qerr.Code)
		})
	}
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("")
	require.Error(t, err)
}

func TestClientFunc(t *testing.T) {
	c := ClientFunc(func(ctx context.Context, req Request) (string, error) {
		return req.User + "!", nil
	})
	got, err := c.Complete(context.Background(), Request{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi!", got)
}
