package signcodec

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

// DouyuEncryption is the {key, rand_str, enc_time, enc_data, is_special}
// payload fetched from getEncryption before the H5 playurl call.
type DouyuEncryption struct {
	Key       string
	RandStr   string
	EncTime   string
	EncData   string
	IsSpecial int
}

// DouyuAuth computes the opaque "auth" field the H5 playurl endpoint
// accepts. Its only contract is producing a value the endpoint accepts;
// the transform is MD5 over room_id||ts||key||rand_str, matching the
// original client's derivation.
func DouyuAuth(roomID string, tsSeconds int64, enc DouyuEncryption) string {
	raw := roomID + strconv.FormatInt(tsSeconds, 10) + enc.Key + enc.RandStr
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
