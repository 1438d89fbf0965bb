package jce

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder()
	enc.WriteI64(0, 42)
	enc.WriteBool(1, true)
	enc.WriteString(2, "")
	enc.WriteI64(4, 100)
	buf := enc.Bytes()

	i64, ok, err := GetI64(buf, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, i64)

	i32, ok, err := GetI32(buf, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, i32)

	s, ok, err := GetString(buf, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "", s)

	_, ok, err = GetString(buf, 3)
	require.NoError(t, err)
	require.False(t, ok)

	i64b, ok, err := GetI64(buf, 4)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 100, i64b)
}

func TestZeroValuesEncodeAsZeroTag(t *testing.T) {
	enc := NewEncoder()
	enc.WriteI32(0, 0)
	enc.WriteBool(1, false)
	require.Len(t, enc.Bytes(), 2)
}

func TestBytesRoundTrip(t *testing.T) {
	enc := NewEncoder()
	enc.WriteBytes(0, []byte{1, 2, 3, 4})
	got, ok, err := GetBytes(enc.Bytes(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestGetStructBytes(t *testing.T) {
	inner := NewEncoder()
	inner.WriteString(2, "alice")

	outer := NewEncoder()
	outer.writeHead(0, tStructBeg)
	outer.buf = append(outer.buf, inner.Bytes()...)
	outer.writeHead(0, tStructEnd)

	structBytes, ok, err := GetStructBytes(outer.Bytes(), 0)
	require.NoError(t, err)
	require.True(t, ok)

	nick, ok, err := GetString(structBytes, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", nick)
}
