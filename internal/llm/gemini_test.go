package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiClient_Complete(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"merchant\":\"Corner Bakery\","},{"text":"\"total\":\"9.12\"}"}]}}]}`)
	}))
	defer server.Close()

	client, err := newGeminiClient(context.Background(), Config{APIKey: "test-key", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	reply, err := client.Complete(context.Background(), "parse this receipt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"merchant":"Corner Bakery","total":"9.12"}`, reply)
	assert.True(t, strings.HasSuffix(path, "models/gemini-2.0-flash:generateContent"), path)
}

func TestGeminiClient_RequiresKey(t *testing.T) {
	_, err := newGeminiClient(context.Background(), Config{})
	assert.Error(t, err)
}
