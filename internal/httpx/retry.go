package httpx

import (
	"context"
	"net/http"

	retry "github.com/avast/retry-go/v4"
)

// onceRetried runs do once, and again exactly once more if the first
// attempt failed, invoking clearCache (when non-nil) before the retry so
// a directory listing transiently rejected by a stale device/WBI cache
// doesn't fail its retry the same way.
func onceRetried(ctx context.Context, clearCache func(), do func() error) error {
	attempt := 0
	return retry.Do(
		func() error {
			attempt++
			if attempt > 1 && clearCache != nil {
				clearCache()
			}
			return do()
		},
		retry.Attempts(2),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}

// GetJSONOnceRetried performs GetJSON with a single retry, invoking
// clearCache between attempts so a stale device/WBI cache doesn't cause
// the retry to fail the same way the first attempt did.
func (c *Client) GetJSONOnceRetried(ctx context.Context, url string, headers http.Header, v any, clearCache func()) error {
	return onceRetried(ctx, clearCache, func() error {
		return c.GetJSON(ctx, url, headers, v)
	})
}

// GetTextOnceRetried is GetJSONOnceRetried's counterpart for endpoints
// that return scraped HTML/text rather than JSON, e.g. Huya's
// mobile-page directory lookup.
func (c *Client) GetTextOnceRetried(ctx context.Context, url string, headers http.Header, clearCache func()) (string, error) {
	var body string
	err := onceRetried(ctx, clearCache, func() error {
		var err error
		body, err = c.GetText(ctx, url, headers)
		return err
	})
	return body, err
}
