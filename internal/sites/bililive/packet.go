package bililive

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/MatchaCake/livecore/internal/model"
)

const (
	opHeartbeat     = 2
	opCommand       = 5
	opAuth          = 7
	opAuthReply     = 8
	protoverMaxDepth = 4
)

// packet is one decoded BiliLive WS frame.
type packet struct {
	protover  uint16
	operation uint32
	body      []byte
}

// encodePacket builds the 16-byte-header frame: be_u32 packet_len,
// be_u16 header_len=16, be_u16 protover, be_u32 operation, be_u32 seq=1.
func encodePacket(body []byte, operation uint32, protover uint16) []byte {
	packetLen := uint32(16 + len(body))
	out := make([]byte, 16, 16+len(body))
	binary.BigEndian.PutUint32(out[0:4], packetLen)
	binary.BigEndian.PutUint16(out[4:6], 16)
	binary.BigEndian.PutUint16(out[6:8], protover)
	binary.BigEndian.PutUint32(out[8:12], operation)
	binary.BigEndian.PutUint32(out[12:16], 1)
	out = append(out, body...)
	return out
}

// parsePackets loops until fewer than 16 bytes remain or a declared
// length overruns the buffer.
func parsePackets(data []byte) ([]packet, error) {
	var out []packet
	for len(data) >= 16 {
		packetLen := int(binary.BigEndian.Uint32(data[0:4]))
		if packetLen < 16 || packetLen > len(data) {
			break
		}
		headerLen := int(binary.BigEndian.Uint16(data[4:6]))
		protover := binary.BigEndian.Uint16(data[6:8])
		operation := binary.BigEndian.Uint32(data[8:12])

		if headerLen > packetLen {
			return nil, model.New(model.KindParse, "invalid bilibili header_len")
		}

		body := append([]byte(nil), data[headerLen:packetLen]...)
		out = append(out, packet{protover: protover, operation: operation, body: body})
		data = data[packetLen:]
	}
	return out, nil
}

// inflateAny tries zlib, then brotli, then raw deflate (skipping 2
// bytes), then gzip, returning the first one that decodes.
func inflateAny(data []byte) ([]byte, error) {
	if out, err := readAllFrom(zlibNewReader(data)); err == nil {
		return out, nil
	}

	if out, err := decompressBrotli(data); err == nil {
		return out, nil
	}

	if len(data) > 2 {
		if out, err := readAllFrom(flate.NewReader(bytes.NewReader(data[2:])), nil); err == nil {
			return out, nil
		}
	}

	if out, err := readAllFrom(gzip.NewReader(bytes.NewReader(data))); err == nil {
		return out, nil
	}

	return nil, model.New(model.KindCodec, "inflate failed")
}

func zlibNewReader(data []byte) (io.ReadCloser, error) {
	return zlib.NewReader(bytes.NewReader(data))
}

func readAllFrom(rc io.ReadCloser, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// decompressBrotli handles servers that send brotli-compressed
// protover-2 bodies, tried before the gzip fallback.
func decompressBrotli(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, model.Wrap(model.KindCodec, "brotli inflate failed", err)
	}
	return out, nil
}
