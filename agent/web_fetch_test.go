package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Release notes</title></head>
<body>
<nav><a href="/">Home</a> | <a href="/about">About</a></nav>
<article>
<h1>Release notes</h1>
<p>This release adds chat compression. When the conversation history grows close to the model's token limit, the history is summarized into a compact snapshot and the conversation continues from it.</p>
<p>It also adds a next speaker check so the model can keep working on multi step tasks without waiting for the user to say continue after every turn.</p>
<p>Finally, transient errors from the API such as rate limits and server errors are retried with exponential backoff and jitter before they are reported.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestWebFetchExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(articleHTML))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("  just text \n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tool := webFetchTool(srv.Client())

	res, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL + "/article"})
	require.NoError(t, err)
	assert.Contains(t, res.LLMContent, "Content from "+srv.URL+"/article:")
	assert.Contains(t, res.LLMContent, "adds chat compression")

	res, err = tool.Execute(context.Background(), map[string]any{"url": srv.URL + "/plain"})
	require.NoError(t, err)
	assert.Equal(t, "Content from "+srv.URL+"/plain:\n\njust text", res.LLMContent)

	_, err = tool.Execute(context.Background(), map[string]any{"url": srv.URL + "/missing"})
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestWebFetchRejectsOtherSchemes(t *testing.T) {
	tool := webFetchTool(http.DefaultClient)

	_, err := tool.Execute(context.Background(), map[string]any{"url": "file:///etc/passwd"})
	assert.ErrorContains(t, err, "must start with http")

	_, err = tool.Execute(context.Background(), map[string]any{})
	assert.EqualError(t, err, "url is required")
}
