package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecode is wrapped by every decoding failure.
	ErrDecode = errors.New("protocol: decode failed")

	ErrImageSize      = errors.New("protocol: image size mismatch")
	ErrUnknownKind    = errors.New("protocol: unknown message kind")
	ErrDirection      = errors.New("protocol: message direction mismatch")
	ErrUnknownTag     = errors.New("protocol: unknown event tag")
	ErrTooDeep        = errors.New("protocol: struct nesting too deep")
	ErrInvalidMessage = errors.New("protocol: message cannot be encoded")
)

// DecodeError locates a decoding failure within the message.
type DecodeError struct {
	Kind uint16
	Path []string
	Err  error
}

func (e *DecodeError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("protocol: decode %s: %v", KindName(e.Kind), e.Err)
	}
	return fmt.Sprintf("protocol: decode %s at %s: %v", KindName(e.Kind), strings.Join(e.Path, "."), e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}
