package bililive

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MatchaCake/livecore/internal/httpx"
)

func TestCorrespondPathProducesHex(t *testing.T) {
	path, err := correspondPath(1700000000000)
	require.NoError(t, err)
	require.NotEmpty(t, path)
	for _, c := range path {
		require.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
	}
}

func TestCorrespondPathVariesWithTimestamp(t *testing.T) {
	a, err := correspondPath(1)
	require.NoError(t, err)
	b, err := correspondPath(2)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestScrapeRefreshCsrf(t *testing.T) {
	html := `<html><body><div id="1-name">abc123csrf</div></body></html>`
	csrf, ok := scrapeRefreshCsrf(html)
	require.True(t, ok)
	require.Equal(t, "abc123csrf", csrf)
}

func TestScrapeRefreshCsrfMissing(t *testing.T) {
	_, ok := scrapeRefreshCsrf(`<html><body>nothing here</body></html>`)
	require.False(t, ok)
}

func TestRefreshCookieIfNeededNoRefreshNeeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"refresh":false}}`))
	}))
	defer srv.Close()

	auth := NewCookieAuth(httpx.New(0), srv.URL)
	newCookie, newToken, refreshed, err := auth.RefreshCookieIfNeeded(t.Context(), "SESSDATA=abc", "csrf1", "tok1")
	require.NoError(t, err)
	require.False(t, refreshed)
	require.Equal(t, "SESSDATA=abc", newCookie)
	require.Equal(t, "tok1", newToken)
}
