package signcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDouyuAuth(t *testing.T) {
	enc := DouyuEncryption{Key: "somekey", RandStr: "somerand"}
	got := DouyuAuth("12345", 1700000000, enc)
	require.Equal(t, "632345826d14574183afa632bd5be0b0", got)
}

func TestDouyuAuthChangesWithInputs(t *testing.T) {
	enc := DouyuEncryption{Key: "k1", RandStr: "r1"}
	a := DouyuAuth("1", 100, enc)
	b := DouyuAuth("2", 100, enc)
	require.NotEqual(t, a, b)
}
