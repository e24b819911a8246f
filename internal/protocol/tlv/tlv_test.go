package tlv

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesOrder(t *testing.T) {
	in := []Field{
		{ID: 1, Type: TypeString, Value: []byte("face-1")},
		{ID: 2, Type: TypeBytes, Value: []byte{0xAA, 0xBB}},
		{ID: 2, Type: TypeBytes, Value: []byte{}},
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(out))
	}
	if out[1].ID != 2 || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("field order not preserved: %+v", out[1])
	}
	if len(out[2].Value) != 0 {
		t.Fatalf("empty value grew: %+v", out[2])
	}
	if got := AllFields(out, 2); len(got) != 2 {
		t.Fatalf("expected 2 repeated fields, got %d", len(got))
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestDecodeFieldsUnknownType(t *testing.T) {
	payload := []byte{0, 1, 42, 0, 0, 0, 0}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeFieldsHugeLengthDoesNotOverflow(t *testing.T) {
	payload := []byte{0, 1, TypeBytes, 0xff, 0xff, 0xff, 0xff, 1, 2}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestValueAccessors(t *testing.T) {
	nested := Struct(9, F32(1, 1.5), Bool(2, true))
	fields, err := nested.AsStruct()
	if err != nil {
		t.Fatalf("as struct: %v", err)
	}
	x, err := fields[0].AsF32()
	if err != nil || x != 1.5 {
		t.Fatalf("f32 got=%v err=%v", x, err)
	}
	b, err := fields[1].AsBool()
	if err != nil || !b {
		t.Fatalf("bool got=%v err=%v", b, err)
	}
	big, err := U64(3, math.MaxUint64).AsU64()
	if err != nil || big != math.MaxUint64 {
		t.Fatalf("u64 got=%v err=%v", big, err)
	}
	if _, err := U32(4, 1).AsU64(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if _, err := (Field{ID: 5, Type: TypeU32, Value: []byte{1}}).AsU32(); !errors.Is(err, ErrValueLength) {
		t.Fatalf("expected ErrValueLength, got %v", err)
	}
	if _, err := (Field{ID: 6, Type: TypeBool, Value: []byte{2}}).AsBool(); !errors.Is(err, ErrBoolValue) {
		t.Fatalf("expected ErrBoolValue, got %v", err)
	}
	if _, err := (Field{ID: 7, Type: TypeString, Value: []byte{0xff, 0xfe}}).AsString(); !errors.Is(err, ErrStringValue) {
		t.Fatalf("expected ErrStringValue, got %v", err)
	}
}
