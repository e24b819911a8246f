package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol"
)

// Remote calls an HTTP inference service that keeps image embeddings
// server-side.
//
//	POST {base}/encode  raw RGB body, X-Width/X-Height headers -> {"embedding_id": "..."}
//	POST {base}/decode  {"embedding_id", "points", "labels", "box"} -> {"polygon": [[x,y],...]}
type Remote struct {
	base   string
	client *http.Client
}

func NewRemote(baseURL string, timeout time.Duration) *Remote {
	return &Remote{
		base:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{Timeout: timeout},
	}
}

type remoteFeatures struct {
	id   string
	w, h uint32
}

func (f *remoteFeatures) Size() (uint32, uint32) {
	return f.w, f.h
}

type encodeResponse struct {
	EmbeddingID string `json:"embedding_id"`
}

type decodeRequest struct {
	EmbeddingID string       `json:"embedding_id"`
	Points      [][2]float32 `json:"points,omitempty"`
	Labels      []int        `json:"labels,omitempty"`
	Box         *[4]float32  `json:"box,omitempty"`
}

type decodeResponse struct {
	Polygon [][2]float32 `json:"polygon"`
}

func (r *Remote) Encode(ctx context.Context, img protocol.ImageData) (Features, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/encode", bytes.NewReader(img.Pixels))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Width", strconv.FormatUint(uint64(img.Width), 10))
	req.Header.Set("X-Height", strconv.FormatUint(uint64(img.Height), 10))

	var out encodeResponse
	if err := r.do(req, &out); err != nil {
		return nil, fmt.Errorf("segment: remote encode: %w", err)
	}
	if out.EmbeddingID == "" {
		return nil, fmt.Errorf("segment: remote encode: empty embedding_id")
	}
	logs.Debugf("segment.Remote.Encode size=%dx%d embedding=%s", img.Width, img.Height, out.EmbeddingID)
	return &remoteFeatures{id: out.EmbeddingID, w: img.Width, h: img.Height}, nil
}

func (r *Remote) Decode(ctx context.Context, f Features, p protocol.Prompt) (protocol.Polygon, error) {
	feat, ok := f.(*remoteFeatures)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrForeignFeatures, f)
	}
	body := decodeRequest{EmbeddingID: feat.id}
	switch prompt := p.(type) {
	case protocol.Click:
		label := 0
		if prompt.Positive {
			label = 1
		}
		body.Points = [][2]float32{{prompt.Point.X, prompt.Point.Y}}
		body.Labels = []int{label}
	case protocol.BoundingBox:
		body.Box = &[4]float32{prompt.Min.X, prompt.Min.Y, prompt.Max.X, prompt.Max.Y}
	default:
		return nil, fmt.Errorf("%w: unsupported prompt %T", ErrBadPrompt, p)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/decode", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out decodeResponse
	if err := r.do(req, &out); err != nil {
		return nil, fmt.Errorf("segment: remote decode: %w", err)
	}
	if len(out.Polygon) < 3 {
		return nil, fmt.Errorf("%w: remote returned %d points", ErrEmptyMask, len(out.Polygon))
	}
	poly := make(protocol.Polygon, len(out.Polygon))
	for i, pt := range out.Polygon {
		poly[i] = protocol.Point{X: pt[0], Y: pt[1]}
	}
	return poly, nil
}

func (r *Remote) do(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
