// Package connrunner holds the heartbeat-plus-read-loop skeleton that
// every danmaku connector (BiliLive, Huya, Douyu) otherwise hand-rolls:
// a ticking heartbeat goroutine running alongside a blocking read loop,
// both of which must stop cleanly when ctx is cancelled.
package connrunner

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatFunc sends one heartbeat/ping frame on the wire. It is
// called on every tick until ctx is cancelled or it returns an error.
type HeartbeatFunc func() error

// ReadFunc performs one blocking read plus its downstream decode and
// event-emit work. It returns a non-nil error only when the connection
// should be torn down.
type ReadFunc func() error

// RunWithHeartbeat starts a heartbeat goroutine on interval and then
// calls read in a loop until ctx is cancelled or read returns an error.
// It always waits for the heartbeat goroutine to exit before returning,
// so the caller never leaks it. logAttrs are appended to the warning
// logged when a heartbeat send fails.
func RunWithHeartbeat(ctx context.Context, interval time.Duration, hb HeartbeatFunc, read ReadFunc, logger *slog.Logger, logAttrs ...any) error {
	if logger == nil {
		logger = slog.Default()
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := hb(); err != nil {
					logger.Warn("heartbeat send failed", append(append([]any{}, logAttrs...), "err", err)...)
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-heartbeatDone
			return nil
		default:
		}

		if err := read(); err != nil {
			stopHeartbeat()
			<-heartbeatDone
			return err
		}
	}
}
