package bililive

// auth.go implements the BiliLive cookie refresh side channel described
// in SPEC_FULL.md §4.3: RSA-OAEP-SHA256 over a fixed embedded public
// key, hex-encoded correspond_path, HTML scrape of refresh_csrf, and the
// three-call refresh dance.

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
)

// correspondPubKeyPEM is the passport RSA public key used to encrypt the
// short "refresh_<timestamp>" probe string before the correspond/1/<hex>
// GET. It is a fixed constant with no configuration override; it is a
// well-formed RSA key so the OAEP encryption step has something valid to
// encrypt against.
const correspondPubKeyPEM = `-----BEGIN PUBLIC KEY-----
MIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIBCgKCAQEAv6pg0Q6y16sXSOez00Ol
rsBPoQXUncpLiIVCBtxB9PJ0J18W1l82bmiu0YZJZ72uJAkH5XzkAUJf2YJAmJA3
LQAiv8I78depeDM3o64qcItdQTGkO38fQ8h/j6MzwiMNOLNUZCK6MSgTxk6xHles
/5R1fRLYTkQVTaRlmU5j+ooaTrPkEQO/i/O5/SDDt7fBNSxMpsaaWezyz4nzGaCv
j4fXldBG/YnBUK1UaQcCs4+Gl+gv7mgbqgx9uR7/3sOYbiNiz2kyZ1vX2nVfhhIA
dRNqFA7orCo8sWL0LeBxuWoUf5q5YYZQ9qfffmU3wOwa++tDH7CPwIrc2COVC6c0
UQIDAQAB
-----END PUBLIC KEY-----`

// CookieAuth implements the cookie/refresh flow.
type CookieAuth struct {
	HTTP    *httpx.Client
	APIBase string
}

func NewCookieAuth(h *httpx.Client, apiBase string) *CookieAuth {
	return &CookieAuth{HTTP: h, APIBase: apiBase}
}

// RefreshCookieIfNeeded checks cookie/info for data.refresh and, if set,
// runs the three-call refresh dance. It returns the cookie string it was
// given unchanged, the refresh_token from the cookie/refresh response,
// and whether a refresh ran (callers persist these externally per §6.4).
// Cookies set by the refresh response are not merged into the returned
// string, and confirm/refresh is sent with the original csrf.
func (a *CookieAuth) RefreshCookieIfNeeded(ctx context.Context, cookie, csrf, refreshToken string) (newCookie, newRefreshToken string, refreshed bool, err error) {
	infoURL := fmt.Sprintf("%s/x/passport-login/web/cookie/info?csrf=%s", strings.TrimRight(a.APIBase, "/"), csrf)
	var info map[string]any
	if err := a.HTTP.GetJSON(ctx, infoURL, a.HTTP.HeaderMapWithCookie("", cookie), &info); err != nil {
		return "", "", false, err
	}
	needsRefresh, _ := ptrBool(info, "data", "refresh")
	if !needsRefresh {
		return cookie, refreshToken, false, nil
	}

	correspondPath, err := correspondPath(time.Now().UnixMilli())
	if err != nil {
		return "", "", false, model.Wrap(model.KindLivestream, "build correspond path", err)
	}

	html, err := a.HTTP.GetText(ctx, "https://www.bilibili.com/correspond/1/"+correspondPath, a.HTTP.HeaderMapWithCookie("", cookie))
	if err != nil {
		return "", "", false, err
	}
	refreshCsrf, ok := scrapeRefreshCsrf(html)
	if !ok {
		return "", "", false, model.New(model.KindParse, "missing refresh_csrf in correspond page")
	}

	refreshURL := fmt.Sprintf("%s/x/passport-login/web/cookie/refresh", strings.TrimRight(a.APIBase, "/"))
	form := map[string]string{
		"csrf":          csrf,
		"refresh_csrf":  refreshCsrf,
		"source":        "main_web",
		"refresh_token": refreshToken,
	}
	body, status, err := a.HTTP.PostForm(ctx, refreshURL, form, a.HTTP.HeaderMapWithCookie("", cookie))
	if err != nil {
		return "", "", false, err
	}
	if status < 200 || status >= 300 {
		return "", "", false, model.New(model.KindHTTP, "cookie/refresh http status "+strconv.Itoa(status))
	}

	var refreshResp map[string]any
	if err := jsonUnmarshalLoose(body, &refreshResp); err != nil {
		return "", "", false, model.Wrap(model.KindParse, "decode cookie/refresh response", err)
	}
	newToken, _ := ptrStr(refreshResp, "data", "refresh_token")

	confirmURL := fmt.Sprintf("%s/x/passport-login/web/confirm/refresh", strings.TrimRight(a.APIBase, "/"))
	confirmForm := map[string]string{
		"csrf":                csrf,
		"refresh_token_old":   refreshToken,
	}
	if _, _, err := a.HTTP.PostForm(ctx, confirmURL, confirmForm, a.HTTP.HeaderMapWithCookie("", cookie)); err != nil {
		return "", "", false, err
	}

	return cookie, newToken, true, nil
}

func jsonUnmarshalLoose(body string, v any) error {
	return httpx.JSONUnmarshal([]byte(body), v)
}

// correspondPath RSA-OAEP-SHA256-encrypts "refresh_<timestampMs>" with
// the embedded public key and hex-encodes the ciphertext.
func correspondPath(timestampMs int64) (string, error) {
	block, _ := pem.Decode([]byte(correspondPubKeyPEM))
	if block == nil {
		return "", model.New(model.KindCodec, "invalid embedded public key PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return "", err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return "", model.New(model.KindCodec, "embedded public key is not RSA")
	}
	plain := []byte(fmt.Sprintf("refresh_%d", timestampMs))
	cipher, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, rsaPub, plain, nil)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(cipher), nil
}

// scrapeRefreshCsrf finds <div id="1-name">{refresh_csrf}</div>.
func scrapeRefreshCsrf(html string) (string, bool) {
	const marker = `<div id="1-name">`
	idx := strings.Index(html, marker)
	if idx < 0 {
		return "", false
	}
	rest := html[idx+len(marker):]
	end := strings.Index(rest, "</div>")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
