package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("x-goog-api-key"))

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		assert.Equal(t, "hola", body.Contents[0].Parts[0].Text)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  Buenos "},{"text":"días  "}]}}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient("secret-key", "test-model", srv.URL+"/", time.Second)
	out, err := client.Generate(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, "Buenos días", out)
}

func TestGeminiUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	client := NewGeminiClient("k", "", srv.URL, time.Second)
	_, err := client.Generate(context.Background(), "hola")
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGeminiWithoutKeyIsUnavailable(t *testing.T) {
	client := NewGeminiClient("", "", "", 0)
	_, err := client.Generate(context.Background(), "hola")
	assert.ErrorIs(t, err, ErrUnavailable)
}
