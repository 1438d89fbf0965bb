package douyu

// directory.go is a thin wrapper over Douyu's public category room
// list, reusing the same JSON navigation helpers the manifest resolver
// uses.

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MatchaCake/livecore/internal/httpx"
	"github.com/MatchaCake/livecore/internal/model"
)

// ListCategoryRooms fetches one page of a category's ranked room list,
// retrying once on failure.
func ListCategoryRooms(ctx context.Context, h *httpx.Client, ep Endpoints, categoryID, page int) ([]model.DirectoryRoom, error) {
	base := strings.TrimRight(ep.Base, "/")
	u := fmt.Sprintf("%s/gapi/rkc/directory/%d_0/%d", base, categoryID, page)
	var resp map[string]any
	if err := h.GetJSONOnceRetried(ctx, u, nil, &resp, nil); err != nil {
		return nil, err
	}
	list, ok := ptrArray(resp, "data", "rl")
	if !ok {
		return nil, nil
	}

	rooms := make([]model.DirectoryRoom, 0, len(list))
	for _, raw := range list {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rid, _ := toInt64(entry["rid"])
		title, _ := entry["rn"].(string)
		nickname, _ := entry["nn"].(string)
		cover, _ := entry["rs16"].(string)
		online, _ := toInt64(entry["ol"])

		rooms = append(rooms, model.DirectoryRoom{
			RoomID:     strconv.FormatInt(rid, 10),
			Title:      title,
			AnchorName: nickname,
			Cover:      cover,
			Viewers:    online,
			IsLiving:   true,
		})
	}
	return rooms, nil
}
