package huya

// directory.go adds ListRoom, a directory-browsing helper grounded in
// the same mobile-page JSON-blob extraction the danmaku resolver
// already does, since a directory query needs title/cover/status
// without a full danmaku handshake.

import (
	"context"
	"strings"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
)

// ListRoom fetches one room's directory-shaped summary (title, anchor,
// cover, live status) from the same mobile page Resolve scrapes,
// without extracting the danmaku join parameters. The fetch retries
// once on failure.
func ListRoom(ctx context.Context, h *httpx.Client, roomID string) (model.DirectoryRoom, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return model.DirectoryRoom{}, model.New(model.KindInvalidInput, "empty room id")
	}

	headers := h.HeaderMapWithCookie("", "")
	headers.Set("User-Agent", mobileUserAgent)
	html, err := h.GetTextOnceRetried(ctx, "https://m.huya.com/"+roomID, headers, nil)
	if err != nil {
		return model.DirectoryRoom{}, err
	}

	jsonStr, ok := extractGlobalInitJSON(html)
	if !ok {
		return model.DirectoryRoom{}, model.New(model.KindParse, "failed to extract Huya HNF_GLOBAL_INIT json")
	}
	var parsed map[string]any
	if err := httpx.JSONUnmarshal([]byte(jsonStr), &parsed); err != nil {
		return model.DirectoryRoom{}, err
	}

	title, _ := pointerString(parsed, "roomInfo", "tLiveInfo", "sIntroduction")
	anchor, _ := pointerString(parsed, "roomInfo", "tProfileInfo", "sNick")
	cover, _ := pointerString(parsed, "roomInfo", "tLiveInfo", "sScreenshot")
	viewers, _ := pointerInt64(parsed, "roomInfo", "tLiveInfo", "lTotalCount")
	isLiving, _ := pointerInt64(parsed, "roomInfo", "eLiveStatus")

	return model.DirectoryRoom{
		RoomID:     roomID,
		Title:      title,
		AnchorName: anchor,
		Cover:      cover,
		Viewers:    viewers,
		IsLiving:   isLiving == 2,
	}, nil
}

func pointerString(v map[string]any, path ...string) (string, bool) {
	var cur any = v
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[p]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}
