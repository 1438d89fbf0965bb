// Package jce implements the tag-typed binary struct encoding (JCE/TARS)
// used by Huya's WebSocket protocol.
package jce

import (
	"encoding/binary"

	"github.com/MatchaCake/livecore/internal/model"
)

const (
	tByte       = 0
	tShort      = 1
	tInt        = 2
	tLong       = 3
	tString1    = 6
	tString4    = 7
	tList       = 9
	tStructBeg  = 10
	tStructEnd  = 11
	tZeroTag    = 12
	tSimpleList = 13
)

func codecErr(msg string) error { return model.New(model.KindCodec, "jce: "+msg) }

// Encoder builds a JCE/TARS byte stream field by field.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) writeHead(tag uint8, ty uint8) {
	if tag < 15 {
		e.buf = append(e.buf, (tag<<4)|(ty&0x0f))
	} else {
		e.buf = append(e.buf, 0xf0|(ty&0x0f), tag)
	}
}

func (e *Encoder) WriteBool(tag uint8, v bool) {
	if !v {
		e.writeHead(tag, tZeroTag)
		return
	}
	e.writeHead(tag, tByte)
	e.buf = append(e.buf, 1)
}

func (e *Encoder) WriteI32(tag uint8, v int32) {
	if v == 0 {
		e.writeHead(tag, tZeroTag)
		return
	}
	e.writeHead(tag, tInt)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteI64(tag uint8, v int64) {
	if v == 0 {
		e.writeHead(tag, tZeroTag)
		return
	}
	e.writeHead(tag, tLong)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) WriteString(tag uint8, s string) {
	bs := []byte(s)
	if len(bs) < 255 {
		e.writeHead(tag, tString1)
		e.buf = append(e.buf, byte(len(bs)))
		e.buf = append(e.buf, bs...)
		return
	}
	e.writeHead(tag, tString4)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(bs)))
	e.buf = append(e.buf, b[:]...)
	e.buf = append(e.buf, bs...)
}

// WriteBytes encodes a raw byte slice via the SIMPLE_LIST convention:
// head(tag, SIMPLE_LIST) + head(0, BYTE) marker + head(0, INT) + len + data.
func (e *Encoder) WriteBytes(tag uint8, data []byte) {
	e.writeHead(tag, tSimpleList)
	e.writeHead(0, tByte)
	e.writeHead(0, tInt)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(len(data)))
	e.buf = append(e.buf, b[:]...)
	e.buf = append(e.buf, data...)
}

// reader is the internal cursor over a JCE byte buffer.
type reader struct {
	buf []byte
	pos int
}

func newReader(buf []byte) *reader { return &reader{buf: buf} }

func (r *reader) remaining() int {
	n := len(r.buf) - r.pos
	if n < 0 {
		return 0
	}
	return n
}

func (r *reader) readU8() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, codecErr("unexpected eof")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBEi16() (int16, error) {
	if r.remaining() < 2 {
		return 0, codecErr("eof reading i16")
	}
	v := int16(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	return v, nil
}

func (r *reader) readBEi32() (int32, error) {
	if r.remaining() < 4 {
		return 0, codecErr("eof reading i32")
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *reader) readBEi64() (int64, error) {
	if r.remaining() < 8 {
		return 0, codecErr("eof reading i64")
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *reader) readHead() (ty uint8, tag uint32, err error) {
	b, err := r.readU8()
	if err != nil {
		return 0, 0, err
	}
	ty = b & 0x0f
	tag = uint32(b >> 4)
	if tag == 15 {
		b2, err := r.readU8()
		if err != nil {
			return 0, 0, err
		}
		tag = uint32(b2)
	}
	return ty, tag, nil
}

// peekHead reads the head without consuming it, also returning its
// on-wire length so the caller can skip it later.
func (r *reader) peekHead() (ty uint8, tag uint32, headLen int, err error) {
	if r.pos >= len(r.buf) {
		return 0, 0, 0, codecErr("unexpected eof")
	}
	b := r.buf[r.pos]
	ty = b & 0x0f
	tag = uint32(b >> 4)
	headLen = 1
	if tag == 15 {
		if r.pos+1 >= len(r.buf) {
			return 0, 0, 0, codecErr("eof reading long tag")
		}
		tag = uint32(r.buf[r.pos+1])
		headLen = 2
	}
	return ty, tag, headLen, nil
}

func (r *reader) skip(n int) error {
	if r.remaining() < n {
		return codecErr("skip out of range")
	}
	r.pos += n
	return nil
}

func (r *reader) skipToStructEnd() error {
	for {
		ty, _, err := r.readHead()
		if err != nil {
			return err
		}
		if ty == tStructEnd {
			return nil
		}
		if err := r.skipField(ty); err != nil {
			return err
		}
	}
}

func (r *reader) skipField(ty uint8) error {
	switch ty {
	case tZeroTag, tStructEnd:
		return nil
	case tByte:
		return r.skip(1)
	case tShort:
		return r.skip(2)
	case tInt:
		return r.skip(4)
	case tLong:
		return r.skip(8)
	case tString1:
		n, err := r.readU8()
		if err != nil {
			return err
		}
		return r.skip(int(n))
	case tString4:
		n, err := r.readBEi32()
		if err != nil {
			return err
		}
		return r.skip(int(n))
	case tList:
		sty, _, err := r.readHead()
		if err != nil {
			return err
		}
		size, err := r.readIntByType(sty)
		if err != nil {
			return err
		}
		for i := int64(0); i < size; i++ {
			ety, _, err := r.readHead()
			if err != nil {
				return err
			}
			if err := r.skipField(ety); err != nil {
				return err
			}
		}
		return nil
	case tSimpleList:
		mty, _, err := r.readHead()
		if err != nil {
			return err
		}
		if mty != tByte {
			return codecErr("simple_list marker is not BYTE")
		}
		sty, _, err := r.readHead()
		if err != nil {
			return err
		}
		size, err := r.readIntByType(sty)
		if err != nil {
			return err
		}
		return r.skip(int(size))
	case tStructBeg:
		return r.skipToStructEnd()
	default:
		return codecErr("unsupported type")
	}
}

// skipToTag scans forward to the field with the given tag, relying on
// ascending tag order within a struct to stop early. Returns false if the
// tag is absent (struct end reached or a later tag seen first).
func (r *reader) skipToTag(target uint32) (bool, error) {
	for {
		ty, tag, headLen, err := r.peekHead()
		if err != nil {
			return false, nil
		}
		if ty == tStructEnd {
			return false, nil
		}
		if tag == target {
			return true, nil
		}
		if tag > target {
			return false, nil
		}
		if err := r.skip(headLen); err != nil {
			return false, err
		}
		if err := r.skipField(ty); err != nil {
			return false, err
		}
	}
}

func (r *reader) readIntByType(ty uint8) (int64, error) {
	switch ty {
	case tZeroTag:
		return 0, nil
	case tByte:
		b, err := r.readU8()
		if err != nil {
			return 0, err
		}
		return int64(int8(b)), nil
	case tShort:
		v, err := r.readBEi16()
		return int64(v), err
	case tInt:
		v, err := r.readBEi32()
		return int64(v), err
	case tLong:
		return r.readBEi64()
	default:
		return 0, codecErr("type mismatch for int")
	}
}

// GetI32 returns the tagged int32 field, or ok=false if the tag is absent.
func GetI32(data []byte, tag uint32) (v int32, ok bool, err error) {
	r := newReader(data)
	present, err := r.skipToTag(tag)
	if err != nil || !present {
		return 0, false, err
	}
	ty, _, err := r.readHead()
	if err != nil {
		return 0, false, err
	}
	iv, err := r.readIntByType(ty)
	if err != nil {
		return 0, false, err
	}
	return int32(iv), true, nil
}

// GetI64 returns the tagged int64 field, or ok=false if the tag is absent.
func GetI64(data []byte, tag uint32) (v int64, ok bool, err error) {
	r := newReader(data)
	present, err := r.skipToTag(tag)
	if err != nil || !present {
		return 0, false, err
	}
	ty, _, err := r.readHead()
	if err != nil {
		return 0, false, err
	}
	iv, err := r.readIntByType(ty)
	if err != nil {
		return 0, false, err
	}
	return iv, true, nil
}

// GetString returns the tagged string field, or ok=false if the tag is
// absent. ZERO_TAG decodes to an explicit empty string (ok=true).
func GetString(data []byte, tag uint32) (v string, ok bool, err error) {
	r := newReader(data)
	present, err := r.skipToTag(tag)
	if err != nil || !present {
		return "", false, err
	}
	ty, _, err := r.readHead()
	if err != nil {
		return "", false, err
	}
	switch ty {
	case tString1:
		n, err := r.readU8()
		if err != nil {
			return "", false, err
		}
		if r.remaining() < int(n) {
			return "", false, codecErr("eof reading string1")
		}
		s := string(r.buf[r.pos : r.pos+int(n)])
		return s, true, nil
	case tString4:
		n, err := r.readBEi32()
		if err != nil {
			return "", false, err
		}
		if r.remaining() < int(n) {
			return "", false, codecErr("eof reading string4")
		}
		s := string(r.buf[r.pos : r.pos+int(n)])
		return s, true, nil
	case tZeroTag:
		return "", true, nil
	default:
		return "", false, codecErr("type mismatch for string")
	}
}

// GetBytes returns the tagged byte-blob field (SIMPLE_LIST or a LIST of
// bytes), or ok=false if the tag is absent. ZERO_TAG decodes to an empty
// slice (ok=true).
func GetBytes(data []byte, tag uint32) (v []byte, ok bool, err error) {
	r := newReader(data)
	present, err := r.skipToTag(tag)
	if err != nil || !present {
		return nil, false, err
	}
	ty, _, err := r.readHead()
	if err != nil {
		return nil, false, err
	}
	switch ty {
	case tSimpleList:
		mty, _, err := r.readHead()
		if err != nil {
			return nil, false, err
		}
		if mty != tByte {
			return nil, false, codecErr("simple_list marker is not BYTE")
		}
		sty, _, err := r.readHead()
		if err != nil {
			return nil, false, err
		}
		size, err := r.readIntByType(sty)
		if err != nil {
			return nil, false, err
		}
		if r.remaining() < int(size) {
			return nil, false, codecErr("eof reading bytes")
		}
		out := make([]byte, size)
		copy(out, r.buf[r.pos:r.pos+int(size)])
		return out, true, nil
	case tList:
		sty, _, err := r.readHead()
		if err != nil {
			return nil, false, err
		}
		size, err := r.readIntByType(sty)
		if err != nil {
			return nil, false, err
		}
		out := make([]byte, 0, size)
		for i := int64(0); i < size; i++ {
			ety, _, err := r.readHead()
			if err != nil {
				return nil, false, err
			}
			iv, err := r.readIntByType(ety)
			if err != nil {
				return nil, false, err
			}
			out = append(out, byte(iv))
		}
		return out, true, nil
	case tZeroTag:
		return []byte{}, true, nil
	default:
		return nil, false, codecErr("type mismatch for bytes")
	}
}

// GetStructBytes returns the raw byte range of the tagged nested struct
// (between STRUCT_BEGIN and its matching STRUCT_END), or ok=false if the
// tag is absent.
func GetStructBytes(data []byte, tag uint32) (v []byte, ok bool, err error) {
	r := newReader(data)
	present, err := r.skipToTag(tag)
	if err != nil || !present {
		return nil, false, err
	}
	ty, _, err := r.readHead()
	if err != nil {
		return nil, false, err
	}
	if ty != tStructBeg {
		return nil, false, codecErr("type mismatch for struct")
	}
	start := r.pos
	for {
		pty, _, headLen, err := r.peekHead()
		if err != nil {
			return nil, false, err
		}
		if pty == tStructEnd {
			end := r.pos
			if _, _, err := r.readHead(); err != nil {
				return nil, false, err
			}
			out := make([]byte, end-start)
			copy(out, r.buf[start:end])
			return out, true, nil
		}
		if err := r.skip(headLen); err != nil {
			return nil, false, err
		}
		if err := r.skipField(pty); err != nil {
			return nil, false, err
		}
	}
}
