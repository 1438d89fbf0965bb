package signcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignApp(t *testing.T) {
	params := map[string]string{
		"appkey":   "1d8b6e7d45233436",
		"build":    "6530400",
		"platform": "android",
	}
	got := SignApp(params, "560c52ccd288fed045859ed18bffd973")
	require.Equal(t, "7f7f30c230de436f9898fba627932c8f", got)
}

func TestSignAppOrderIndependent(t *testing.T) {
	a := SignApp(map[string]string{"b": "2", "a": "1"}, "secret")
	b := SignApp(map[string]string{"a": "1", "b": "2"}, "secret")
	require.Equal(t, a, b)
}
