package extract

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quka-ai/knowledge-sync/pkg/ai"
)

const page = `<html><head><title>Opening hours</title></head>
<body><nav><li>Home</li></nav>
<main><h1>Hours</h1><p>We are open 9 to 5.</p><ul><li>Closed on Sunday</li></ul></main>
</body></html>`

func TestLocalHTML(t *testing.T) {
	text, err := Local{}.Extract(context.Background(), []byte(page), "text/html; charset=utf-8")
	require.NoError(t, err)

	assert.Equal(t, "Opening hours\nHours\nWe are open 9 to 5.\nClosed on Sunday", text)
	assert.NotContains(t, text, "Home")
}

func TestLocalPlainText(t *testing.T) {
	text, err := Local{}.Extract(context.Background(), []byte("line one  \r\nline two\n"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestLocalUnsupported(t *testing.T) {
	_, err := Local{}.Extract(context.Background(), []byte("%PDF-1.7"), "application/pdf")
	assert.ErrorIs(t, err, ai.ErrUnsupportedMimeType)
}

func TestChainFallsBackToRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.7", string(body))
		_, _ = w.Write([]byte("menu of the day\n"))
	}))
	defer srv.Close()

	chain := Chain{Local{}, NewRemote(srv.URL)}
	text, err := chain.Extract(context.Background(), []byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "menu of the day", text)
}

type failing struct{}

func (failing) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "", errors.New("service down")
}

func TestChainStopsOnHardError(t *testing.T) {
	chain := Chain{failing{}, Local{}}
	_, err := chain.Extract(context.Background(), []byte("hello"), "text/plain")
	assert.EqualError(t, err, "service down")
}
