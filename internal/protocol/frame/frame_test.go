package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/defectctl/internal/protocol/tlv"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := tlv.EncodeFields([]tlv.Field{tlv.String(1, "/srv/faces")})
	in := Frame{
		Header:  Header{Kind: 1},
		Payload: payload,
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	out, err := Parse(buf.Bytes(), DefaultLimits())
	if err != nil {
		t.Fatalf("parse frame: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.Version != Version || out.Header.Kind != 1 {
		t.Fatalf("header mismatch: got=%+v", out.Header)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestParseRequiresExactLength(t *testing.T) {
	b, err := Bytes(Frame{Header: Header{Kind: 2, Flags: FlagServer}, Payload: []byte{1, 2, 3}}, DefaultLimits())
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if _, err := Parse(b, DefaultLimits()); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Parse(b[:len(b)-1], DefaultLimits()); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
	if _, err := Parse(append(b, 0), DefaultLimits()); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}

func TestParseShortHeaderIsDeterministic(t *testing.T) {
	if _, err := Parse([]byte{1, 2, 3}, DefaultLimits()); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader from Parse, got %v", err)
	}
}

func TestHeaderValidation(t *testing.T) {
	tests := []struct {
		name string
		h    Header
		want error
	}{
		{name: "bad magic", h: Header{Magic: 1, Version: Version}, want: ErrInvalidMagic},
		{name: "bad version", h: Header{Magic: Magic, Version: 9}, want: ErrUnsupportedVer},
		{name: "unknown flags", h: Header{Magic: Magic, Version: Version, Flags: 0x80}, want: ErrUnknownFlags},
		{name: "too large", h: Header{Magic: Magic, Version: Version, PayloadLen: 1 << 31}, want: ErrPayloadTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(EncodeHeader(tc.h), DefaultLimits())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAppendRejectsOversizedPayload(t *testing.T) {
	_, err := Append(nil, Frame{Payload: make([]byte, 8)}, Limits{MaxPayloadBytes: 4})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
