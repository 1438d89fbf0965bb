// Package livecore is a unified client for Chinese live-streaming /
// danmaku ecosystems: manifest resolution, chat-stream connectors, and a
// hot-link image proxy for BiliLive, Douyu, and Huya.
package livecore

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/imagefetch"
	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/registry"
	"github.com/MatchaCake/livecore/internal/sites/bililive"
	"github.com/MatchaCake/livecore/internal/sites/douyu"
	"github.com/MatchaCake/livecore/internal/sites/huya"
	"github.com/MatchaCake/livecore/internal/variant"
)

// Client is the facade every embedder constructs: it owns the shared
// HTTP client, the session registry, and the image cache.
type Client struct {
	cfg      Config
	http     *httpx.Client
	logger   *slog.Logger
	sessions *registry.Registry
	images   *imagefetch.Fetcher

	bililiveManifest *bililive.Manifest
	douyuManifest    *douyu.Manifest
}

// New constructs a Client ready for DecodeManifest/OpenLive/FetchImage.
func New(logger *slog.Logger, opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := httpx.New(0)
	sessions := registry.New(logger)

	return &Client{
		cfg:              cfg,
		http:             h,
		logger:           logger,
		sessions:         sessions,
		images:           imagefetch.New(sessions, cfg.imagefetchConfig()),
		bililiveManifest: bililive.NewManifest(h, cfg.BiliLive),
		douyuManifest:    douyu.NewManifest(h, cfg.Douyu),
	}
}

// detectSite parses a raw URL or "site:room_id" shortform into a site
// tag and a room-id-shaped input the adapter understands.
func detectSite(input string) (Site, string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", "", model.New(model.KindInvalidInput, "empty input")
	}

	if site, rest, ok := strings.Cut(input, ":"); ok {
		switch strings.ToLower(site) {
		case "bililive", "bilibili", "bl":
			return SiteBiliLive, rest, nil
		case "douyu", "dy":
			return SiteDouyu, rest, nil
		case "huya", "hy":
			return SiteHuya, rest, nil
		}
	}

	lower := strings.ToLower(input)
	switch {
	case strings.Contains(lower, "live.bilibili.com"), strings.Contains(lower, "bilibili.com"):
		return SiteBiliLive, lastPathSegment(input), nil
	case strings.Contains(lower, "douyu.com"):
		return SiteDouyu, lastPathSegment(input), nil
	case strings.Contains(lower, "huya.com"):
		return SiteHuya, lastPathSegment(input), nil
	}

	// Bare numeric input with no site hint defaults to BiliLive, the
	// most common caller integration.
	if _, err := strconv.ParseInt(input, 10, 64); err == nil {
		return SiteBiliLive, input, nil
	}

	return "", "", model.New(model.KindInvalidInput, "cannot determine site for input: "+input)
}

func lastPathSegment(input string) string {
	trimmed := strings.TrimRight(input, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// DecodeManifest resolves a room's metadata and stream variants without
// opening a danmaku session.
func (c *Client) DecodeManifest(ctx context.Context, input string) (LiveManifest, error) {
	site, roomID, err := detectSite(input)
	if err != nil {
		return LiveManifest{}, err
	}

	var m model.LiveManifest
	switch site {
	case SiteBiliLive:
		m, err = c.bililiveManifest.DecodeManifest(ctx, roomID, input, bililive.ResolveOptions{})
	case SiteDouyu:
		m, err = c.douyuManifest.DecodeManifest(ctx, roomID, input, douyu.ResolveOptions{})
	default:
		return LiveManifest{}, model.New(model.KindInvalidInput, "manifest resolution unsupported for site: "+string(site))
	}
	if err != nil {
		return LiveManifest{}, err
	}
	return toPublicManifest(site, m), nil
}

func toPublicManifest(site Site, m model.LiveManifest) LiveManifest {
	variants := make([]StreamVariant, 0, len(m.Variants))
	for _, v := range m.Variants {
		variants = append(variants, StreamVariant{
			ID: v.ID, Label: v.Label, Quality: v.Quality, Rate: v.Rate,
			URL: v.URL, BackupURLs: v.BackupURLs,
		})
	}
	return LiveManifest{
		Site: site, RoomID: m.RoomID, RawInput: m.RawInput,
		Title: m.Info.Title, AnchorName: m.Info.AnchorName,
		Avatar: m.Info.Avatar, Cover: m.Info.Cover, IsLiving: m.Info.IsLiving,
		Referer: m.Playback.Referer, UserAgent: m.Playback.UserAgent,
		Variants: variants,
	}
}

// OpenLive decodes the manifest, selects a playable variant, resolves
// and starts the matching danmaku connector, and registers the session.
// preferLowest selects the lowest- rather than highest-quality variant;
// variantID, if non-empty, short-circuits selection to that exact id.
func (c *Client) OpenLive(ctx context.Context, input string, preferLowest bool, variantID string) (LiveOpenResult, <-chan DanmakuMessage, error) {
	site, roomID, err := detectSite(input)
	if err != nil {
		return LiveOpenResult{}, nil, err
	}

	var manifest model.LiveManifest
	var resolveVariant variant.ResolveVariantFunc
	switch site {
	case SiteBiliLive:
		manifest, err = c.bililiveManifest.DecodeManifest(ctx, roomID, input, bililive.ResolveOptions{})
		resolveVariant = func(id string) (model.StreamVariant, error) {
			return c.bililiveManifest.ResolveVariant(ctx, manifest.RoomID, id)
		}
	case SiteDouyu:
		manifest, err = c.douyuManifest.DecodeManifest(ctx, roomID, input, douyu.ResolveOptions{})
		resolveVariant = func(id string) (model.StreamVariant, error) {
			return c.douyuManifest.ResolveVariant(ctx, manifest.RoomID, id)
		}
	default:
		return LiveOpenResult{}, nil, model.New(model.KindInvalidInput, "manifest resolution unsupported for site: "+string(site))
	}
	if err != nil {
		return LiveOpenResult{}, nil, err
	}

	chosen, err := variant.SelectAndResolveVariant(manifest.Variants, preferLowest, variantID, resolveVariant)
	if err != nil {
		return LiveOpenResult{}, nil, model.Wrap(model.KindLivestream, "select variant", err)
	}

	run, err := c.bindDanmakuRunner(ctx, site, manifest.RoomID)
	if err != nil {
		return LiveOpenResult{}, nil, err
	}

	sessionID, out, err := c.sessions.OpenLive(model.Site(site), manifest.RoomID, run)
	if err != nil {
		return LiveOpenResult{}, nil, err
	}

	result := LiveOpenResult{
		SessionID: sessionID, Site: site, RoomID: manifest.RoomID,
		Title: manifest.Info.Title, VariantID: chosen.ID, VariantLabel: chosen.Label,
		URL: chosen.URL, BackupURLs: chosen.BackupURLs,
		Referer: manifest.Playback.Referer, UserAgent: manifest.Playback.UserAgent,
	}
	return result, toPublicMessages(out), nil
}

// toPublicMessages relays through an UnboundedQueue rather than a fixed
// channel so a caller that's slow to drain the returned channel never
// stalls the registry's forwarder goroutine feeding it.
func toPublicMessages(in <-chan registry.Message) <-chan DanmakuMessage {
	out := model.NewUnboundedQueue[DanmakuMessage]()
	go func() {
		defer out.Close()
		for m := range in {
			_ = out.Send(context.Background(), DanmakuMessage{
				SessionID: m.SessionID, ReceivedAtMs: m.ReceivedAtMs,
				Method:   DanmakuMethod(m.Method),
				User:     m.User, Text: m.Text, ImageURL: m.ImageURL, ImageWidth: m.ImageWidth,
			})
		}
	}()
	return out.Receive()
}

// bindDanmakuRunner resolves the danmaku connect target up front and
// returns a closure the registry can run on its own task without
// needing to know about per-site resolve steps.
func (c *Client) bindDanmakuRunner(ctx context.Context, site Site, roomID string) (registry.RunFunc, error) {
	switch site {
	case SiteBiliLive:
		getter := bililive.HTTPGetter{Client: c.http}
		target, err := bililive.Resolve(ctx, getter, bililive.DefaultDanmakuEndpoints(), roomID)
		if err != nil {
			return nil, err
		}
		logger := c.logger
		return func(runCtx context.Context, sink *model.EventChannel) error {
			return bililive.Run(runCtx, target, sink, logger)
		}, nil

	case SiteDouyu:
		target := douyu.Resolve(roomID, "")
		logger := c.logger
		return func(runCtx context.Context, sink *model.EventChannel) error {
			return douyu.Run(runCtx, target, sink, logger)
		}, nil

	case SiteHuya:
		target, err := huya.Resolve(ctx, c.http, roomID)
		if err != nil {
			return nil, err
		}
		logger := c.logger
		return func(runCtx context.Context, sink *model.EventChannel) error {
			return huya.Run(runCtx, target, huya.ConnectOptions{}, sink, logger)
		}, nil

	default:
		return nil, model.New(model.KindInvalidInput, "danmaku unsupported for site: "+string(site))
	}
}

// CloseLive stops a session's connector and blocks until the connector
// task has terminated; the goroutine forwarding into the session's
// message stream is not awaited.
func (c *Client) CloseLive(sessionID string) error {
	return c.sessions.CloseLive(sessionID)
}

// FetchImage re-fetches a hot-linked image through the SSRF-guarded,
// cached proxy, attaching the session's site-aware referer.
func (c *Client) FetchImage(ctx context.Context, sessionID, url string) (Image, error) {
	img, err := c.images.FetchImage(ctx, sessionID, url)
	if err != nil {
		return Image{}, err
	}
	return Image{Mime: img.Mime, Base64: img.Base64}, nil
}

// LiveDirBiliLive lists live.bilibili.com's area-ranked room directory.
func (c *Client) LiveDirBiliLive(ctx context.Context, parentAreaID, areaID, page int) ([]DirectoryRoom, error) {
	rooms, err := bililive.ListAreaRooms(ctx, c.http, c.cfg.BiliLive, parentAreaID, areaID, page)
	if err != nil {
		return nil, err
	}
	return toPublicRooms(rooms), nil
}

// LiveDirDouyu lists one page of a Douyu category's ranked room list.
func (c *Client) LiveDirDouyu(ctx context.Context, categoryID, page int) ([]DirectoryRoom, error) {
	rooms, err := douyu.ListCategoryRooms(ctx, c.http, c.cfg.Douyu, categoryID, page)
	if err != nil {
		return nil, err
	}
	return toPublicRooms(rooms), nil
}

// LiveDirHuya looks up a single Huya room's directory-shaped summary.
func (c *Client) LiveDirHuya(ctx context.Context, roomID string) (DirectoryRoom, error) {
	room, err := huya.ListRoom(ctx, c.http, roomID)
	if err != nil {
		return DirectoryRoom{}, err
	}
	return toPublicRooms([]model.DirectoryRoom{room})[0], nil
}

func toPublicRooms(rooms []model.DirectoryRoom) []DirectoryRoom {
	out := make([]DirectoryRoom, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, DirectoryRoom{
			RoomID: r.RoomID, Title: r.Title, AnchorName: r.AnchorName,
			Cover: r.Cover, Viewers: r.Viewers, IsLiving: r.IsLiving,
		})
	}
	return out
}
