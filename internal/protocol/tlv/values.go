package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var (
	ErrTypeMismatch = errors.New("tlv: field type mismatch")
	ErrValueLength  = errors.New("tlv: invalid value length")
	ErrBoolValue    = errors.New("tlv: invalid bool value")
	ErrStringValue  = errors.New("tlv: invalid utf-8 string")
)

func U8(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeU8, Value: []byte{v}}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func U64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

// Bytes does not copy v; the field is encoded before v can change.
func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: v}
}

func F32(id uint16, v float32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return Field{ID: id, Type: TypeF32, Value: buf}
}

// Struct nests fields as the value of one field.
func Struct(id uint16, fields ...Field) Field {
	return Field{ID: id, Type: TypeStruct, Value: EncodeFields(fields)}
}

func (f Field) check(t uint8, size int) error {
	if f.Type != t {
		return fmt.Errorf("%w: field %d got %s want %s", ErrTypeMismatch, f.ID, TypeName(f.Type), TypeName(t))
	}
	if size >= 0 && len(f.Value) != size {
		return fmt.Errorf("%w: field %d %s has %d bytes", ErrValueLength, f.ID, TypeName(t), len(f.Value))
	}
	return nil
}

func (f Field) AsU8() (uint8, error) {
	if err := f.check(TypeU8, 1); err != nil {
		return 0, err
	}
	return f.Value[0], nil
}

func (f Field) AsU32() (uint32, error) {
	if err := f.check(TypeU32, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

func (f Field) AsU64() (uint64, error) {
	if err := f.check(TypeU64, 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

func (f Field) AsBool() (bool, error) {
	if err := f.check(TypeBool, 1); err != nil {
		return false, err
	}
	switch f.Value[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: field %d byte %#x", ErrBoolValue, f.ID, f.Value[0])
	}
}

func (f Field) AsString() (string, error) {
	if err := f.check(TypeString, -1); err != nil {
		return "", err
	}
	if !utf8.Valid(f.Value) {
		return "", fmt.Errorf("%w: field %d", ErrStringValue, f.ID)
	}
	return string(f.Value), nil
}

// AsBytes returns a copy of the value.
func (f Field) AsBytes() ([]byte, error) {
	if err := f.check(TypeBytes, -1); err != nil {
		return nil, err
	}
	buf := make([]byte, len(f.Value))
	copy(buf, f.Value)
	return buf, nil
}

func (f Field) AsF32() (float32, error) {
	if err := f.check(TypeF32, 4); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(f.Value)), nil
}

// AsStruct decodes the nested field sequence.
func (f Field) AsStruct() ([]Field, error) {
	if err := f.check(TypeStruct, -1); err != nil {
		return nil, err
	}
	return DecodeFields(f.Value)
}
