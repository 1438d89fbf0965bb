package signcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractBraceJSON(t *testing.T) {
	html := `<script>var ROOM = {"a":1,"b":{"c":2},"d":"}"};</script>`
	got, err := ExtractBraceJSON(html, "ROOM =")
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":{"c":2},"d":"}"}`, got)
}

func TestExtractBraceJSONMarkerMissing(t *testing.T) {
	_, err := ExtractBraceJSON(`<html></html>`, "ROOM =")
	require.Error(t, err)
}

func TestExtractBraceJSONNoObjectAfterMarker(t *testing.T) {
	_, err := ExtractBraceJSON(`ROOM = no object here`, "ROOM =")
	require.Error(t, err)
}

func TestExtractBraceJSONUnbalanced(t *testing.T) {
	_, err := ExtractBraceJSON(`ROOM = {"a":1`, "ROOM =")
	require.Error(t, err)
}

func TestExtractBraceJSONEscapedQuoteInString(t *testing.T) {
	html := `ROOM = {"text":"he said \"hi }\" to me","n":1}`
	got, err := ExtractBraceJSON(html, "ROOM =")
	require.NoError(t, err)
	require.Equal(t, html[len("ROOM = "):], got)
}

func TestUnescapeTwice(t *testing.T) {
	require.Equal(t, `say "hi"`, UnescapeTwice(`say \"hi\"`))
	require.Equal(t, `a\b`, UnescapeTwice(`a\\b`))
}

func TestFastRoomIDFallback(t *testing.T) {
	id, ok := FastRoomIDFallback(`var x = {room_id: 54321, show_status: 1}`)
	require.True(t, ok)
	require.Equal(t, "54321", id)

	_, ok = FastRoomIDFallback(`no room id here`)
	require.False(t, ok)
}
