package bililive

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeDmV2(t *testing.T) {
	raw, err := hex.DecodeString("080010011a0568656c6c6f22240a1e68747470733a2f2f69302e6864736c622e636f6d2f656d6f74652e706e6710301830")
	require.NoError(t, err)

	msg, err := decodeDmV2(raw)
	require.NoError(t, err)
	require.EqualValues(t, 0, msg.BizScene)
	require.EqualValues(t, dmTypeEmoticon, msg.DmType)
	require.Equal(t, "hello", msg.Text)
	require.Len(t, msg.Emoticons, 1)
	require.Equal(t, "https://i0.hdslb.com/emote.png", msg.Emoticons[0].URL)
	require.EqualValues(t, 48, msg.Emoticons[0].Width)
	require.EqualValues(t, 48, msg.Emoticons[0].Height)
}

func TestDecodeDmV2TruncatedVarint(t *testing.T) {
	_, err := decodeDmV2([]byte{0x80})
	require.Error(t, err)
}

func TestDecodeDmV2TextOnly(t *testing.T) {
	raw, err := hex.DecodeString("1a036869")
	require.NoError(t, err)

	msg, err := decodeDmV2(raw)
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Text)
	require.Empty(t, msg.Emoticons)
}

func TestReadVarintMultiByte(t *testing.T) {
	v, n, err := readVarint([]byte{0xac, 0x02})
	require.NoError(t, err)
	require.EqualValues(t, 300, v)
	require.Equal(t, 2, n)
}
