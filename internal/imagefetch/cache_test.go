package imagefetch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteLRUGetAddRoundTrip(t *testing.T) {
	b := newByteLRU(8, 1024)
	key := cacheKey{sessionID: "s1", url: "http://x/a.png"}

	_, ok := b.Get(key)
	require.False(t, ok)

	b.Add(key, []byte("hello"))
	data, ok := b.Get(key)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), data)
}

func TestByteLRUEvictsOnByteBound(t *testing.T) {
	b := newByteLRU(100, 16)

	k1 := cacheKey{sessionID: "s1", url: "a"}
	k2 := cacheKey{sessionID: "s1", url: "b"}
	k3 := cacheKey{sessionID: "s1", url: "c"}

	b.Add(k1, make([]byte, 10))
	b.Add(k2, make([]byte, 10))

	_, ok := b.Get(k1)
	require.False(t, ok, "k1 should have been evicted once curBytes exceeded maxBytes")
	_, ok = b.Get(k2)
	require.True(t, ok)

	b.Add(k3, make([]byte, 4))
	_, ok = b.Get(k2)
	require.True(t, ok)
	_, ok = b.Get(k3)
	require.True(t, ok)
	require.LessOrEqual(t, b.curBytes, int64(16))
}

func TestByteLRUEvictsOnEntryBound(t *testing.T) {
	b := newByteLRU(2, 1<<20)

	k1 := cacheKey{sessionID: "s1", url: "a"}
	k2 := cacheKey{sessionID: "s1", url: "b"}
	k3 := cacheKey{sessionID: "s1", url: "c"}

	b.Add(k1, []byte("1"))
	b.Add(k2, []byte("2"))
	b.Add(k3, []byte("3"))

	_, ok := b.Get(k1)
	require.False(t, ok)
	_, ok = b.Get(k2)
	require.True(t, ok)
	_, ok = b.Get(k3)
	require.True(t, ok)
}

func TestByteLRUReAddUpdatesSize(t *testing.T) {
	b := newByteLRU(100, 16)
	key := cacheKey{sessionID: "s1", url: "a"}

	b.Add(key, make([]byte, 10))
	require.Equal(t, int64(10), b.curBytes)

	b.Add(key, make([]byte, 4))
	require.Equal(t, int64(4), b.curBytes)
}

func TestMimeLRUGetAddRoundTrip(t *testing.T) {
	m := newMimeLRU(8)
	key := cacheKey{sessionID: "s1", url: "http://x/a.png"}

	_, ok := m.Get(key)
	require.False(t, ok)

	m.Add(key, "image/png")
	mime, ok := m.Get(key)
	require.True(t, ok)
	require.Equal(t, "image/png", mime)
}
