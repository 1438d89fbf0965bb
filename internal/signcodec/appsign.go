package signcodec

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SignApp implements Bilibili's TV-app signing: sort params by key, join
// as k=url_encode(v), append appsec, MD5-hex.
func SignApp(params map[string]string, appsec string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var joined strings.Builder
	for i, k := range names {
		if i > 0 {
			joined.WriteByte('&')
		}
		joined.WriteString(k)
		joined.WriteByte('=')
		joined.WriteString(url.QueryEscape(params[k]))
	}
	sum := md5.Sum([]byte(joined.String() + appsec))
	return hex.EncodeToString(sum[:])
}
