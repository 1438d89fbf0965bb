package bililive

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MatchaCake/livecore/internal/httpx"
)

func TestListAreaRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"list":[
			{"roomid":12345,"title":"room one","uname":"anchor one","cover":"https://x/c1.jpg","online":100,"live_status":1},
			{"roomid":67890,"title":"room two","uname":"anchor two","cover":"https://x/c2.jpg","online":0,"live_status":0}
		]}}`))
	}))
	defer srv.Close()

	ep := Endpoints{APIBase: srv.URL, LiveBase: srv.URL}
	rooms, err := ListAreaRooms(t.Context(), httpx.New(0), ep, 1, 2, 1)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	require.Equal(t, "12345", rooms[0].RoomID)
	require.Equal(t, "room one", rooms[0].Title)
	require.Equal(t, "anchor one", rooms[0].AnchorName)
	require.EqualValues(t, 100, rooms[0].Viewers)
	require.True(t, rooms[0].IsLiving)
	require.False(t, rooms[1].IsLiving)
}

func TestListAreaRoomsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{}}`))
	}))
	defer srv.Close()

	ep := Endpoints{APIBase: srv.URL, LiveBase: srv.URL}
	rooms, err := ListAreaRooms(t.Context(), httpx.New(0), ep, 1, 2, 1)
	require.NoError(t, err)
	require.Empty(t, rooms)
}

func TestSignedAppParamsIsStableHex(t *testing.T) {
	sig := SignedAppParams(1, 2, 3)
	require.Len(t, sig, 32)
	require.Equal(t, sig, SignedAppParams(1, 2, 3))
	require.NotEqual(t, sig, SignedAppParams(1, 2, 4))
}
