package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSiteValid(t *testing.T) {
	require.True(t, SiteBiliLive.Valid())
	require.True(t, SiteDouyu.Valid())
	require.True(t, SiteHuya.Valid())
	require.False(t, Site("twitch").Valid())
}

func TestConnectInfoSiteTags(t *testing.T) {
	require.Equal(t, SiteBiliLive, BiliLiveConnect{}.Site())
	require.Equal(t, SiteHuya, HuyaConnect{}.Site())
	require.Equal(t, SiteDouyu, DouyuConnect{}.Site())
}

func TestStreamVariantHasURL(t *testing.T) {
	require.True(t, StreamVariant{URL: "https://x"}.HasURL())
	require.False(t, StreamVariant{}.HasURL())
}

func TestDanmakuEventIsMarker(t *testing.T) {
	require.True(t, DanmakuEvent{}.IsMarker())
	require.False(t, DanmakuEvent{Comments: []DanmakuComment{{Text: "hi"}}}.IsMarker())
}

func TestEventChannelSendReceive(t *testing.T) {
	ch := NewEventChannel(2)
	err := ch.Send(context.Background(), DanmakuEvent{User: "a"})
	require.NoError(t, err)
	ch.Close()

	ev, ok := <-ch.Receive()
	require.True(t, ok)
	require.Equal(t, "a", ev.User)

	_, ok = <-ch.Receive()
	require.False(t, ok)
}

// TestEventChannelSendNeverBlocksOnAStalledConsumer confirms Send keeps
// accepting values well past any fixed-buffer size without ever reading
// Receive(): the queue grows instead of applying back-pressure.
func TestEventChannelSendNeverBlocksOnAStalledConsumer(t *testing.T) {
	ch := NewEventChannel(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10_000; i++ {
			require.NoError(t, ch.Send(context.Background(), DanmakuEvent{User: "a"}))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a stalled consumer")
	}
	ch.Close()
}

func TestEventChannelSendRespectsCancellation(t *testing.T) {
	ch := NewEventChannel(1)
	require.NoError(t, ch.Send(context.Background(), DanmakuEvent{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ch.Send(ctx, DanmakuEvent{})
	require.Error(t, err)
}

func TestEventChannelSendAfterCloseErrors(t *testing.T) {
	ch := NewEventChannel(1)
	ch.Close()
	err := ch.Send(context.Background(), DanmakuEvent{})
	require.Error(t, err)
}

func TestErrorKindOf(t *testing.T) {
	err := New(KindBlockedHost, "nope")
	k, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindBlockedHost, k)

	_, ok = KindOf(errors.New("plain"))
	require.False(t, ok)
}

func TestErrorWrapUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(KindHTTP, "context", inner)
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "boom")
	require.Contains(t, err.Error(), "context")
}

func TestErrorIsMatchesOnKind(t *testing.T) {
	err := New(KindSessionNotFound, "session xyz not found")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.False(t, errors.Is(err, ErrHTTP))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "BlockedHost", KindBlockedHost.String())
	require.Equal(t, "Unknown", Kind(999).String())
}
