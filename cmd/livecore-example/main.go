package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	livecore "github.com/MatchaCake/livecore"
)

func main() {
	input := flag.String("room", "bililive:510", "room to open, as site:room_id or a room URL")
	preferLowest := flag.Bool("lowest", false, "prefer the lowest-quality variant instead of the highest")
	variantID := flag.String("variant", "", "exact variant id to use (overrides -lowest)")
	flag.Parse()

	logger := slog.Default()
	client := livecore.New(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	manifest, err := client.DecodeManifest(ctx, *input)
	if err != nil {
		slog.Error("decode manifest failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("[房间] %s - %s (living=%v)\n", manifest.AnchorName, manifest.Title, manifest.IsLiving)
	for _, v := range manifest.Variants {
		fmt.Printf("  variant %s: %s\n", v.ID, v.Label)
	}

	result, messages, err := client.OpenLive(ctx, *input, *preferLowest, *variantID)
	if err != nil {
		slog.Error("open live failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("[会话] %s variant=%s url=%s\n", result.SessionID, result.VariantID, result.URL)

	go func() {
		for msg := range messages {
			if msg.Method == livecore.MethodLiveDMServer {
				if msg.Text == "error" {
					slog.Warn("connector reported a fatal error", "session_id", msg.SessionID)
				} else {
					slog.Info("connected", "session_id", msg.SessionID)
				}
				continue
			}
			if msg.ImageURL != "" {
				img, err := client.FetchImage(ctx, msg.SessionID, msg.ImageURL)
				if err != nil {
					slog.Warn("fetch image failed", "error", err)
				} else {
					fmt.Printf("[弹幕] %s: [image %s, %d bytes base64]\n", msg.User, img.Mime, len(img.Base64))
					continue
				}
			}
			fmt.Printf("[弹幕] %s: %s\n", msg.User, msg.Text)
		}
	}()

	<-ctx.Done()
	if err := client.CloseLive(result.SessionID); err != nil {
		slog.Error("close live failed", "error", err)
	}
	slog.Info("stopped")
}
