// Package segment adapts image segmentation backends to the annotation
// session.
//
// A backend turns an image into reusable Features once (Encode) and then
// answers many cheap prompt queries against them (Decode). Shared bounds
// concurrent backend use for the whole process and Cache skips repeat
// encodes of identical images.
package segment

import (
	"context"
	"errors"

	"github.com/danmuck/defectctl/internal/protocol"
)

var (
	ErrTimeout         = errors.New("segment: backend call timed out")
	ErrEmptyMask       = errors.New("segment: prompt selected no region")
	ErrBadPrompt       = errors.New("segment: prompt outside image")
	ErrForeignFeatures = errors.New("segment: features from another backend")
	ErrUnknownBackend  = errors.New("segment: unknown backend")
	ErrBackendPanic    = errors.New("segment: backend panicked")
)

// Features is the backend's encoded form of one image. Implementations are
// immutable once returned from Encode.
type Features interface {
	Size() (width, height uint32)
}

type Segmenter interface {
	Encode(ctx context.Context, img protocol.ImageData) (Features, error)
	Decode(ctx context.Context, f Features, p protocol.Prompt) (protocol.Polygon, error)
}

// Func adapts a pair of functions to a Segmenter.
type Func struct {
	EncodeFunc func(ctx context.Context, img protocol.ImageData) (Features, error)
	DecodeFunc func(ctx context.Context, f Features, p protocol.Prompt) (protocol.Polygon, error)
}

func (f Func) Encode(ctx context.Context, img protocol.ImageData) (Features, error) {
	return f.EncodeFunc(ctx, img)
}

func (f Func) Decode(ctx context.Context, feat Features, p protocol.Prompt) (protocol.Polygon, error) {
	return f.DecodeFunc(ctx, feat, p)
}
