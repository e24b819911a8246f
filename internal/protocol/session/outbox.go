package session

import (
	"sort"
	"sync"
	"time"
)

// PendingRequest tracks one outbound request awaiting its reply.
type PendingRequest struct {
	Seq       uint64
	Kind      uint16
	ReplyKind uint16
	Label     string
	SentAt    time.Time
}

// RequestOutbox holds requests in send order. The server answers strictly in
// order and may drop a request without replying, so a reply settles the
// oldest outstanding request expecting that reply kind.
type RequestOutbox struct {
	mu    sync.Mutex
	next  uint64
	items []PendingRequest
}

func NewRequestOutbox() *RequestOutbox {
	return &RequestOutbox{}
}

func (o *RequestOutbox) Track(kind uint16, replyKind uint16, label string, at time.Time) PendingRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.next++
	item := PendingRequest{
		Seq:       o.next,
		Kind:      kind,
		ReplyKind: replyKind,
		Label:     label,
		SentAt:    at,
	}
	o.items = append(o.items, item)
	return item
}

// Resolve removes and returns the oldest request waiting for replyKind.
func (o *RequestOutbox) Resolve(replyKind uint16) (PendingRequest, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, item := range o.items {
		if item.ReplyKind != replyKind {
			continue
		}
		o.items = append(o.items[:i], o.items[i+1:]...)
		return item, true
	}
	return PendingRequest{}, false
}

// Expire removes and returns requests sent more than after before now.
func (o *RequestOutbox) Expire(now time.Time, after time.Duration) []PendingRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.items[:0]
	var expired []PendingRequest
	for _, item := range o.items {
		if now.Sub(item.SentAt) > after {
			expired = append(expired, item)
			continue
		}
		kept = append(kept, item)
	}
	o.items = kept
	return expired
}

func (o *RequestOutbox) List() []PendingRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PendingRequest, len(o.items))
	copy(out, o.items)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (o *RequestOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

func (o *RequestOutbox) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = nil
}
