package livecore

import "github.com/MatchaCake/livecore/internal/model"

// Kind re-exports the core error taxonomy so callers never need to
// import an internal package to inspect an error.
type Kind = model.Kind

const (
	KindInvalidInput         = model.KindInvalidInput
	KindLivestream           = model.KindLivestream
	KindDanmaku              = model.KindDanmaku
	KindNeedPassword         = model.KindNeedPassword
	KindSessionNotFound      = model.KindSessionNotFound
	KindUnsupportedURLScheme = model.KindUnsupportedURLScheme
	KindBlockedHost          = model.KindBlockedHost
	KindHTTP                 = model.KindHTTP
	KindImageTooLarge        = model.KindImageTooLarge
	KindParse                = model.KindParse
	KindCodec                = model.KindCodec
)

// Error is the single public error type every facade call returns.
type Error = model.Error

// KindOf extracts the Kind from any error returned by this package,
// reporting false for errors that didn't originate here.
func KindOf(err error) (Kind, bool) { return model.KindOf(err) }
