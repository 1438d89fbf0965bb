// Package httpx provides the single shared HTTP client every site adapter
// builds on: cookie-aware, browser-UA'd, with JSON/text helpers.
package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MatchaCake/livecore/internal/model"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client wraps *http.Client with the headers/timeouts every adapter needs.
type Client struct {
	HTTP      *http.Client
	UserAgent string
}

// New builds the default redirect-following, cookie-jar-backed client.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		HTTP: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
		UserAgent: DefaultUserAgent,
	}
}

// NewNoRedirect builds a client that never follows redirects, used by the
// QQ-login probe which needs to inspect Location/Set-Cookie on a 302.
func NewNoRedirect(timeout time.Duration) *Client {
	c := New(timeout)
	c.HTTP.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// BuildCookieHeader merges non-empty cookie fragments with "; ", trimming
// blanks, into a single cookie header string.
func BuildCookieHeader(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "; ")
}

// HeaderMapWithCookie returns the standard UA/Referer header set plus an
// optional Cookie header.
func (c *Client) HeaderMapWithCookie(referer, cookie string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.UserAgent)
	if referer != "" {
		h.Set("Referer", referer)
	}
	if cookie != "" {
		h.Set("Cookie", cookie)
	}
	return h
}

func (c *Client) newRequest(ctx context.Context, method, url string, headers http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, model.Wrap(model.KindHTTP, "build request", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

// GetJSON fetches url and decodes the body as JSON into v.
func (c *Client) GetJSON(ctx context.Context, url string, headers http.Header, v any) error {
	body, err := c.GetText(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return model.Wrap(model.KindParse, "decode json from "+url, err)
	}
	return nil
}

// GetText fetches url and returns the response body as a string.
func (c *Client) GetText(ctx context.Context, url string, headers http.Header) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, headers)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", model.Wrap(model.KindHTTP, "GET "+url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", model.Wrap(model.KindHTTP, "read body from "+url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return string(b), model.Wrap(model.KindHTTP, httpStatusMsg(url, resp.StatusCode), nil)
	}
	return string(b), nil
}

// PostForm POSTs url-encoded form values and returns the response body.
func (c *Client) PostForm(ctx context.Context, target string, form map[string]string, headers http.Header) (string, int, error) {
	vals := url.Values{}
	for k, v := range form {
		vals.Set(k, v)
	}
	body := strings.NewReader(vals.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return "", 0, model.Wrap(model.KindHTTP, "build post request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", 0, model.Wrap(model.KindHTTP, "POST "+target, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, model.Wrap(model.KindHTTP, "read body from "+target, err)
	}
	return string(b), resp.StatusCode, nil
}

func httpStatusMsg(target string, status int) string {
	return "http status " + http.StatusText(status) + " (" + strconv.Itoa(status) + ") for " + target
}

// JSONUnmarshal decodes raw JSON bytes, wrapping decode failures in the
// shared error taxonomy so callers outside this package don't need to
// import encoding/json directly for ad-hoc response shapes.
func JSONUnmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return model.Wrap(model.KindParse, "decode json", err)
	}
	return nil
}
