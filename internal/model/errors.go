package model

import (
	"errors"
	"fmt"
)

// Kind is the flat error taxonomy shared across the whole module.
type Kind int

const (
	KindInvalidInput Kind = iota
	KindLivestream
	KindDanmaku
	KindNeedPassword
	KindSessionNotFound
	KindUnsupportedURLScheme
	KindBlockedHost
	KindHTTP
	KindImageTooLarge
	KindParse
	KindCodec
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindLivestream:
		return "Livestream"
	case KindDanmaku:
		return "Danmaku"
	case KindNeedPassword:
		return "NeedPassword"
	case KindSessionNotFound:
		return "SessionNotFound"
	case KindUnsupportedURLScheme:
		return "UnsupportedUrlScheme"
	case KindBlockedHost:
		return "BlockedHost"
	case KindHTTP:
		return "Http"
	case KindImageTooLarge:
		return "ImageTooLarge"
	case KindParse:
		return "Parse"
	case KindCodec:
		return "Codec"
	default:
		return "Unknown"
	}
}

// Error is the single public error type every core component returns.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind alone via the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Sentinels for errors.Is comparisons against a bare kind.
var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrLivestream           = &Error{Kind: KindLivestream}
	ErrDanmaku              = &Error{Kind: KindDanmaku}
	ErrNeedPassword         = &Error{Kind: KindNeedPassword}
	ErrSessionNotFound      = &Error{Kind: KindSessionNotFound}
	ErrUnsupportedURLScheme = &Error{Kind: KindUnsupportedURLScheme}
	ErrBlockedHost          = &Error{Kind: KindBlockedHost}
	ErrHTTP                 = &Error{Kind: KindHTTP}
	ErrImageTooLarge        = &Error{Kind: KindImageTooLarge}
	ErrParse                = &Error{Kind: KindParse}
	ErrCodec                = &Error{Kind: KindCodec}
)

// KindOf extracts the Kind from the first *Error in err's chain. For an
// error that is not one of ours it returns ok=false and a zero Kind.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
