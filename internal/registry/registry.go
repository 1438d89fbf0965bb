// Package registry implements the process-wide session map: one entry
// per open danmaku stream, each backed by a connector task and a reader
// task that forwards normalized messages to the caller.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/MatchaCake/livecore/internal/model"
)

// Message is the registry's outward-facing shape for one danmaku event,
// already tagged with the session it came from.
type Message struct {
	SessionID     string
	ReceivedAtMs  int64
	Method        model.DanmakuMethod
	User          string
	Text          string
	ImageURL      string
	ImageWidth    int
	HasImageWidth bool
}

// Meta is the small, read-mostly description the image fetcher looks up
// by session id.
type Meta struct {
	Site   model.Site
	RoomID string
}

// RunFunc starts a connector's read/heartbeat loop; it must return when
// ctx is cancelled.
type RunFunc func(ctx context.Context, sink *model.EventChannel) error

type session struct {
	id       string
	meta     Meta
	cancel   context.CancelFunc
	done     chan struct{}
	outbound *model.UnboundedQueue[Message]
}

// Registry is safe for concurrent use; the session map is lock-free
// (xsync.MapOf), keeping session lookups off an explicit mutex.
type Registry struct {
	sessions *xsync.MapOf[string, *session]
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: xsync.NewMapOf[string, *session](),
		logger:   logger,
	}
}

// newSessionID mints a locally-unique id from a nanosecond timestamp and
// a random uint64, both hex-encoded.
func newSessionID() string {
	var randPart [8]byte
	_, _ = rand.Read(randPart[:])
	nanos := time.Now().UnixNano()
	var nanosBuf [8]byte
	binary.BigEndian.PutUint64(nanosBuf[:], uint64(nanos))
	return hex.EncodeToString(nanosBuf[:]) + hex.EncodeToString(randPart[:])
}

// OpenLive starts a connector, wires its event stream to an outbound
// channel of normalized Messages, and registers the session. The
// session's context.CancelFunc is never exposed to callers; cancellation
// happens only through CloseLive.
func (r *Registry) OpenLive(site model.Site, roomID string, run RunFunc) (sessionID string, outbound <-chan Message, err error) {
	id := newSessionID()
	sessCtx, cancel := context.WithCancel(context.Background())
	sink := model.NewEventChannel(64)
	out := model.NewUnboundedQueue[Message]()

	sess := &session{
		id:       id,
		meta:     Meta{Site: site, RoomID: roomID},
		cancel:   cancel,
		done:     make(chan struct{}),
		outbound: out,
	}

	go func() {
		defer close(sess.done)
		runErr := run(sessCtx, sink)
		sink.Close()
		if runErr != nil {
			r.logger.Warn("danmaku connector terminated", "session_id", id, "err", runErr)
		}
	}()

	go func() {
		defer out.Close()
		for ev := range sink.Receive() {
			msg := Message{
				SessionID:    id,
				ReceivedAtMs: ev.TimestampMs,
				Method:       ev.Method,
				User:         ev.User,
				Text:         ev.Text,
			}
			if len(ev.Comments) > 0 {
				c := ev.Comments[0]
				msg.Text = c.Text
				msg.ImageURL = c.ImageURL
				msg.ImageWidth = c.ImageWidth
				msg.HasImageWidth = c.HasWidth
			}
			// A stalled caller must never block the connector's
			// event loop, so this forwards unconditionally.
			_ = out.Send(context.Background(), msg)
		}
	}()

	r.sessions.Store(id, sess)
	return id, out.Receive(), nil
}

// CloseLive removes a session, cancels its connector, and blocks until
// the connector task has terminated. The forwarding goroutine is not
// awaited; it drains the closed sink and then closes the outbound stream.
func (r *Registry) CloseLive(sessionID string) error {
	sess, ok := r.sessions.LoadAndDelete(sessionID)
	if !ok {
		return model.New(model.KindSessionNotFound, "session not found: "+sessionID)
	}
	sess.cancel()
	<-sess.done
	return nil
}

// Meta looks up a session's site/room_id for the image fetcher.
func (r *Registry) Meta(sessionID string) (Meta, bool) {
	sess, ok := r.sessions.Load(sessionID)
	if !ok {
		return Meta{}, false
	}
	return sess.meta, true
}

// Count reports the number of currently open sessions (diagnostics only).
func (r *Registry) Count() int {
	n := 0
	r.sessions.Range(func(_ string, _ *session) bool {
		n++
		return true
	})
	return n
}
