package bililive

// directory.go implements a thin live-directory listing wrapper per
// SPEC_FULL.md §4.9: the same JSON navigation helpers the manifest
// resolver already uses, applied to the public area-ranked room list
// instead of a single room's playinfo.

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
	"github.com/MatchaCake/livecore/internal/signcodec"
)

// appSignSecret is an empty placeholder TV-app secret. It is a constant
// and is not read from Config; the plain web endpoint ListAreaRooms uses
// does not require it.
const appSignSecret = ""

// SignedAppParams runs the appsign helper over a directory query's
// parameters and returns the resulting MD5-hex sign value (not a query
// string). ListAreaRooms does not call it.
func SignedAppParams(parentAreaID, areaID, page int) string {
	params := map[string]string{
		"parent_area_id": strconv.Itoa(parentAreaID),
		"area_id":        strconv.Itoa(areaID),
		"page":           strconv.Itoa(page),
	}
	return signcodec.SignApp(params, appSignSecret)
}

// ListAreaRooms fetches one page of live.bilibili.com's area-ranked room
// directory, retrying once on failure.
func ListAreaRooms(ctx context.Context, h *httpx.Client, ep Endpoints, parentAreaID, areaID, page int) ([]model.DirectoryRoom, error) {
	u := fmt.Sprintf("%s/room/v1/Area/getRoomList?parent_area_id=%d&area_id=%d&page=%d",
		strings.TrimRight(ep.APIBase, "/"), parentAreaID, areaID, page)
	var resp map[string]any
	if err := h.GetJSONOnceRetried(ctx, u, nil, &resp, nil); err != nil {
		return nil, err
	}
	list, ok := ptrArray(resp, "data", "list")
	if !ok {
		return nil, nil
	}

	rooms := make([]model.DirectoryRoom, 0, len(list))
	for _, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		roomID, _ := asInt(entry["roomid"])
		title, _ := entry["title"].(string)
		uname, _ := entry["uname"].(string)
		cover, _ := entry["cover"].(string)
		online, _ := asInt(entry["online"])
		liveStatus, _ := asInt(entry["live_status"])

		rooms = append(rooms, model.DirectoryRoom{
			RoomID:     strconv.Itoa(roomID),
			Title:      title,
			AnchorName: uname,
			Cover:      cover,
			Viewers:    int64(online),
			IsLiving:   liveStatus == 1,
		})
	}
	return rooms, nil
}
