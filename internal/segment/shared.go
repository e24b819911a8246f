package segment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/observability"
	"github.com/danmuck/defectctl/internal/protocol"
)

// Shared serializes access to one backend instance for every session in the
// process. At most workers calls run at once, each bounded by timeout and by
// the caller's context.
//
// A call that times out returns immediately; its slot is released only when
// the backend call itself returns.
type Shared struct {
	backend Segmenter
	slots   chan struct{}
	timeout time.Duration
}

func NewShared(backend Segmenter, workers int, timeout time.Duration) *Shared {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Shared{
		backend: backend,
		slots:   make(chan struct{}, workers),
		timeout: timeout,
	}
}

func (s *Shared) Encode(ctx context.Context, img protocol.ImageData) (Features, error) {
	return call(s, ctx, "encode", func(ctx context.Context) (Features, error) {
		return s.backend.Encode(ctx, img)
	})
}

func (s *Shared) Decode(ctx context.Context, f Features, p protocol.Prompt) (protocol.Polygon, error) {
	return call(s, ctx, "decode", func(ctx context.Context) (protocol.Polygon, error) {
		return s.backend.Decode(ctx, f, p)
	})
}

type result[T any] struct {
	v   T
	err error
}

func call[T any](s *Shared, parent context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		err := s.ctxErr(parent, ctx, op)
		observability.RecordSegment(op, outcome(err), time.Since(start))
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer func() { <-s.slots }()
		defer func() {
			if r := recover(); r != nil {
				logs.Errf("segment.Shared.%s backend panic=%v", op, r)
				done <- result[T]{err: fmt.Errorf("%w: %s: %v", ErrBackendPanic, op, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			r.err = s.ctxErr(parent, ctx, op)
		}
		observability.RecordSegment(op, outcome(r.err), time.Since(start))
		return r.v, r.err
	case <-ctx.Done():
		err := s.ctxErr(parent, ctx, op)
		logs.Warnf("segment.Shared.%s abandoned after=%s err=%v", op, time.Since(start).Round(time.Millisecond), err)
		observability.RecordSegment(op, outcome(err), time.Since(start))
		return zero, err
	}
}

func (s *Shared) ctxErr(parent, ctx context.Context, op string) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s exceeded %s", ErrTimeout, op, s.timeout)
	}
	return ctx.Err()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
