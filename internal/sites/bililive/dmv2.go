package bililive

// dmv2.go decodes the dm_v2 fallback payload: a small, fixed-shape
// protobuf message {biz_scene, dm_type, text, emoticons[]}. protoc is
// unavailable in this build environment, and the shape is small and
// stable, so this is a direct hand-rolled wire reader rather than
// generated bindings (see DESIGN.md).

import (
	"github.com/MatchaCake/livecore/internal/model"
)

const (
	bizSceneSurvive = 0
	dmTypeEmoticon  = 1
)

type dmV2Emoticon struct {
	URL    string
	Width  int64
	Height int64
}

type dmV2Message struct {
	BizScene  int32
	DmType    int32
	Text      string
	Emoticons []dmV2Emoticon
}

// protobuf wire types.
const (
	wireVarint = 0
	wire64     = 1
	wireBytes  = 2
	wire32     = 5
)

func decodeDmV2(data []byte) (dmV2Message, error) {
	var msg dmV2Message
	pos := 0
	for pos < len(data) {
		tag, n, err := readVarint(data[pos:])
		if err != nil {
			return msg, model.Wrap(model.KindCodec, "dm_v2: read field tag", err)
		}
		pos += n
		fieldNum := tag >> 3
		wireType := tag & 0x7

		switch wireType {
		case wireVarint:
			v, n, err := readVarint(data[pos:])
			if err != nil {
				return msg, model.Wrap(model.KindCodec, "dm_v2: read varint field", err)
			}
			pos += n
			switch fieldNum {
			case 1: // biz_scene
				msg.BizScene = int32(v)
			case 2: // dm_type
				msg.DmType = int32(v)
			}
		case wireBytes:
			l, n, err := readVarint(data[pos:])
			if err != nil {
				return msg, model.Wrap(model.KindCodec, "dm_v2: read length", err)
			}
			pos += n
			if pos+int(l) > len(data) {
				return msg, model.New(model.KindCodec, "dm_v2: length overruns buffer")
			}
			payload := data[pos : pos+int(l)]
			pos += int(l)
			switch fieldNum {
			case 3: // text
				msg.Text = string(payload)
			case 4: // emoticons (nested message)
				e, err := decodeDmV2Emoticon(payload)
				if err == nil {
					msg.Emoticons = append(msg.Emoticons, e)
				}
			}
		case wire64:
			if pos+8 > len(data) {
				return msg, model.New(model.KindCodec, "dm_v2: truncated 64-bit field")
			}
			pos += 8
		case wire32:
			if pos+4 > len(data) {
				return msg, model.New(model.KindCodec, "dm_v2: truncated 32-bit field")
			}
			pos += 4
		default:
			return msg, model.New(model.KindCodec, "dm_v2: unsupported wire type")
		}
	}
	return msg, nil
}

func decodeDmV2Emoticon(data []byte) (dmV2Emoticon, error) {
	var e dmV2Emoticon
	pos := 0
	for pos < len(data) {
		tag, n, err := readVarint(data[pos:])
		if err != nil {
			return e, err
		}
		pos += n
		fieldNum := tag >> 3
		wireType := tag & 0x7
		switch wireType {
		case wireVarint:
			v, n, err := readVarint(data[pos:])
			if err != nil {
				return e, err
			}
			pos += n
			switch fieldNum {
			case 2:
				e.Width = int64(v)
			case 3:
				e.Height = int64(v)
			}
		case wireBytes:
			l, n, err := readVarint(data[pos:])
			if err != nil {
				return e, err
			}
			pos += n
			if pos+int(l) > len(data) {
				return e, model.New(model.KindCodec, "dm_v2 emoticon: length overruns buffer")
			}
			if fieldNum == 1 {
				e.URL = string(data[pos : pos+int(l)])
			}
			pos += int(l)
		default:
			return e, model.New(model.KindCodec, "dm_v2 emoticon: unsupported wire type")
		}
	}
	return e, nil
}

func readVarint(data []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	for i := 0; i < len(data); i++ {
		b := data[i]
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, model.New(model.KindCodec, "varint too long")
		}
	}
	return 0, 0, model.New(model.KindCodec, "truncated varint")
}
