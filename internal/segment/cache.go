package segment

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/observability"
	"github.com/danmuck/defectctl/internal/protocol"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Fingerprint identifies image content for feature reuse.
type Fingerprint [sha256.Size]byte

func FingerprintOf(img protocol.ImageData) Fingerprint {
	h := sha256.New()
	var dims [8]byte
	binary.BigEndian.PutUint32(dims[0:4], img.Width)
	binary.BigEndian.PutUint32(dims[4:8], img.Height)
	h.Write(dims[:])
	h.Write(img.Pixels)
	var fp Fingerprint
	h.Sum(fp[:0])
	return fp
}

// Cache reuses features for images whose content was already encoded.
// Encode is idempotent on content and features are immutable, so entries
// are shared across sessions.
type Cache struct {
	next    Segmenter
	entries *lru.Cache[Fingerprint, Features]
}

func NewCache(next Segmenter, size int) (*Cache, error) {
	entries, err := lru.New[Fingerprint, Features](size)
	if err != nil {
		return nil, err
	}
	return &Cache{next: next, entries: entries}, nil
}

func (c *Cache) Encode(ctx context.Context, img protocol.ImageData) (Features, error) {
	fp := FingerprintOf(img)
	if f, ok := c.entries.Get(fp); ok {
		observability.RecordCacheLookup(true)
		logs.Debugf("segment.Cache.Encode hit size=%dx%d", img.Width, img.Height)
		return f, nil
	}
	observability.RecordCacheLookup(false)
	f, err := c.next.Encode(ctx, img)
	if err != nil {
		return nil, err
	}
	c.entries.Add(fp, f)
	return f, nil
}

func (c *Cache) Decode(ctx context.Context, f Features, p protocol.Prompt) (protocol.Polygon, error) {
	return c.next.Decode(ctx, f, p)
}

// Len returns the number of cached feature sets.
func (c *Cache) Len() int {
	return c.entries.Len()
}
