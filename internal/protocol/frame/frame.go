package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic      uint32 = 0x44464354 // "DFCT"
	Version    uint16 = 1
	HeaderLen         = 16
	FlagServer uint32 = 0x01

	knownFlags = FlagServer
)

var (
	ErrShortHeader      = errors.New("frame: short fixed header")
	ErrInvalidMagic     = errors.New("frame: invalid magic")
	ErrUnsupportedVer   = errors.New("frame: unsupported version")
	ErrUnknownFlags     = errors.New("frame: unknown flag bits")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
	ErrTruncatedPayload = errors.New("frame: truncated payload")
	ErrTrailingBytes    = errors.New("frame: trailing bytes after payload")
)

// Header is the fixed wire header carried at the start of every transport message.
type Header struct {
	Magic      uint32
	Version    uint16
	Kind       uint16
	Flags      uint32
	PayloadLen uint32
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		// Large enough for an uncompressed 8k x 8k RGB face plus fields.
		MaxPayloadBytes: 256 * 1024 * 1024,
	}
}

// Parse decodes exactly one frame occupying all of b. The payload aliases b.
func Parse(b []byte, limits Limits) (Frame, error) {
	if len(b) < HeaderLen {
		return Frame{}, ErrShortHeader
	}
	h, err := DecodeHeader(b[:HeaderLen])
	if err != nil {
		return Frame{}, err
	}
	if err := h.validate(limits); err != nil {
		return Frame{}, err
	}
	rest := b[HeaderLen:]
	switch {
	case uint64(len(rest)) < uint64(h.PayloadLen):
		return Frame{}, fmt.Errorf("%w: have %d want %d", ErrTruncatedPayload, len(rest), h.PayloadLen)
	case uint64(len(rest)) > uint64(h.PayloadLen):
		return Frame{}, fmt.Errorf("%w: %d extra", ErrTrailingBytes, uint64(len(rest))-uint64(h.PayloadLen))
	}
	return Frame{Header: h, Payload: rest}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	b, err := Append(nil, f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Append appends the encoding of f to dst, filling magic, version and length.
func Append(dst []byte, f Frame, limits Limits) ([]byte, error) {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return nil, ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(f.Payload))
	dst = append(dst, EncodeHeader(h)...)
	return append(dst, f.Payload...), nil
}

// Bytes is Append into a fresh buffer sized for the frame.
func Bytes(f Frame, limits Limits) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderLen + len(f.Payload))
	if err := WriteFrame(&buf, f, limits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h Header) validate(limits Limits) error {
	if h.Magic != Magic {
		return fmt.Errorf("%w: %#x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVer, h.Version)
	}
	if h.Flags&^knownFlags != 0 {
		return fmt.Errorf("%w: %#x", ErrUnknownFlags, h.Flags)
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Kind)
	binary.BigEndian.PutUint32(buf[8:12], h.Flags)
	binary.BigEndian.PutUint32(buf[12:16], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Kind:       binary.BigEndian.Uint16(b[6:8]),
		Flags:      binary.BigEndian.Uint32(b[8:12]),
		PayloadLen: binary.BigEndian.Uint32(b[12:16]),
	}, nil
}
