package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MatchaCake/livecore/internal/model"
)

func TestOpenLiveDeliversMessages(t *testing.T) {
	r := New(nil)
	run := func(ctx context.Context, sink *model.EventChannel) error {
		_ = sink.Send(ctx, model.DanmakuEvent{
			Site: model.SiteBiliLive, RoomID: "12345",
			Method: model.MethodSendDM, User: "alice",
			Comments: []model.DanmakuComment{{Text: "hello"}},
		})
		<-ctx.Done()
		return nil
	}

	sessionID, out, err := r.OpenLive(model.SiteBiliLive, "12345", run)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	select {
	case msg := <-out:
		require.Equal(t, sessionID, msg.SessionID)
		require.Equal(t, model.MethodSendDM, msg.Method)
		require.Equal(t, "alice", msg.User)
		require.Equal(t, "hello", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	meta, ok := r.Meta(sessionID)
	require.True(t, ok)
	require.Equal(t, model.SiteBiliLive, meta.Site)
	require.Equal(t, "12345", meta.RoomID)
	require.Equal(t, 1, r.Count())

	require.NoError(t, r.CloseLive(sessionID))
	require.Equal(t, 0, r.Count())

	_, ok = r.Meta(sessionID)
	require.False(t, ok)
}

func TestCloseLiveUnknownSession(t *testing.T) {
	r := New(nil)
	err := r.CloseLive("does-not-exist")
	require.Error(t, err)
	k, ok := model.KindOf(err)
	require.True(t, ok)
	require.Equal(t, model.KindSessionNotFound, k)
}

func TestOpenLiveClosesOutboundOnConnectorExit(t *testing.T) {
	r := New(nil)
	run := func(ctx context.Context, sink *model.EventChannel) error {
		return nil
	}
	_, out, err := r.OpenLive(model.SiteDouyu, "1", run)
	require.NoError(t, err)

	select {
	case _, open := <-out:
		require.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound channel to close")
	}
}

func TestOpenLiveForwarderNeverBlocksOnSlowReader(t *testing.T) {
	r := New(nil)
	const n = 5000
	connectorDone := make(chan struct{})
	run := func(ctx context.Context, sink *model.EventChannel) error {
		defer close(connectorDone)
		for i := 0; i < n; i++ {
			_ = sink.Send(ctx, model.DanmakuEvent{
				Site: model.SiteBiliLive, RoomID: "1", Method: model.MethodSendDM,
				Comments: []model.DanmakuComment{{Text: "x"}},
			})
		}
		return nil
	}

	_, out, err := r.OpenLive(model.SiteBiliLive, "1", run)
	require.NoError(t, err)

	// Nobody reads out yet: the connector must still finish sending all n
	// events without ever blocking on a reader, since both the event
	// channel and the registry's forwarder grow unbounded instead.
	select {
	case <-connectorDone:
	case <-time.After(2 * time.Second):
		t.Fatal("connector blocked on a slow reader")
	}

	got := 0
	for range out {
		got++
		if got == n {
			break
		}
	}
	require.Equal(t, n, got)
}

func TestNewSessionIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newSessionID()
		require.False(t, seen[id])
		seen[id] = true
	}
}
