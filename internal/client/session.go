// Package client is the operator side of an annotation session: a view state
// machine that mirrors the server, and a websocket Client that feeds it.
package client

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/danmuck/defectctl/internal/protocol/schema"
	"github.com/danmuck/defectctl/internal/protocol/session"
)

var (
	// ErrNotReady is returned by gestures that are not possible in the
	// current view. Nothing is sent.
	ErrNotReady = errors.New("client: not ready")

	// ErrUnexpectedMessage means the server sent a message the current view
	// cannot accept. The session moves to Failed.
	ErrUnexpectedMessage = errors.New("client: unexpected message")
)

// Session tracks what the operator sees. Gestures never change the replica;
// only server messages do. It is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	view     View
	renderer Renderer
	outbox   *session.RequestOutbox
	now      func() time.Time
}

func NewSession(r Renderer) *Session {
	if r == nil {
		r = ImageRenderer{}
	}
	return &Session{
		view:     Connecting{},
		renderer: r,
		outbox:   session.NewRequestOutbox(),
		now:      time.Now,
	}
}

// View returns the current view. AnnotationActive values carry a copy of the
// replica.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.view.(AnnotationActive); ok {
		a.Listing = append([]protocol.FaceKey{}, a.Listing...)
		a.Annotations = a.Annotations.Clone()
		return a
	}
	return s.view
}

// Opened moves Connecting to NoFolder once the transport is up.
func (s *Session) Opened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.view.(Connecting); ok {
		s.view = NoFolder{}
	}
}

// Fail records a transport failure. Any view moves to Failed.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs.Debugf("client.Session.Fail view=%s err=%v", ViewName(s.view), err)
	s.view = Failed{Err: err}
}

// Reset discards everything and returns to Connecting.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = Connecting{}
	s.outbox.Clear()
}

// Apply folds one server message into the view.
func (s *Session) Apply(msg protocol.ServerMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.apply(msg)
	if err != nil {
		logs.Warnf("client.Session.Apply view=%s kind=%s err=%v", ViewName(s.view), protocol.KindName(msg.Kind()), err)
		s.view = Failed{Err: err}
		return err
	}
	s.view = next
	if _, ok := s.outbox.Resolve(msg.Kind()); !ok {
		logs.Debugf("client.Session.Apply unsolicited kind=%s", protocol.KindName(msg.Kind()))
	}
	return nil
}

func (s *Session) apply(msg protocol.ServerMessage) (View, error) {
	unexpected := fmt.Errorf("%w: %s in %s", ErrUnexpectedMessage, protocol.KindName(msg.Kind()), ViewName(s.view))

	switch m := msg.(type) {
	case protocol.FolderContents:
		switch s.view.(type) {
		case NoFolder, FolderListed, AnnotationActive:
			return FolderListed{Listing: append([]protocol.FaceKey{}, m.Keys...)}, nil
		}
		return nil, unexpected

	case protocol.InitialLoad:
		var listing []protocol.FaceKey
		switch v := s.view.(type) {
		case FolderListed:
			listing = v.Listing
		case AnnotationActive:
			listing = v.Listing
		default:
			return nil, unexpected
		}
		tex, err := s.renderer.Upload(m.Image)
		if err != nil {
			return nil, fmt.Errorf("client: upload %q: %w", m.Key.Prefix, err)
		}
		return AnnotationActive{
			Listing:     listing,
			Key:         m.Key,
			Texture:     tex,
			Annotations: m.Annotations.Clone(),
		}, nil

	case protocol.ServerUpdated:
		v, ok := s.view.(AnnotationActive)
		if !ok {
			return nil, unexpected
		}
		v.Annotations = m.Annotations.Clone()
		return v, nil

	default:
		return nil, unexpected
	}
}

// RequestFolder asks the server to list path.
func (s *Session) RequestFolder(path string) (protocol.ClientMessage, error) {
	return s.gesture("load_folder "+path, func(v View) bool {
		switch v.(type) {
		case NoFolder, FolderListed, AnnotationActive:
			return true
		}
		return false
	}, protocol.LoadFolder{Path: path})
}

// SelectKey asks the server to load key from the listed folder.
func (s *Session) SelectKey(key protocol.FaceKey) (protocol.ClientMessage, error) {
	return s.gesture("load_key "+key.Prefix, func(v View) bool {
		switch v.(type) {
		case FolderListed, AnnotationActive:
			return true
		}
		return false
	}, protocol.LoadKey{Key: key})
}

// Click asks for a segmentation seeded at p.
func (s *Session) Click(p protocol.Point, positive bool) (protocol.ClientMessage, error) {
	return s.annotate("click", protocol.Sam{Prompt: protocol.Click{Point: p, Positive: positive}})
}

// Box asks for a segmentation inside the rectangle spanned by a and b, in
// either drag direction.
func (s *Session) Box(a, b protocol.Point) (protocol.ClientMessage, error) {
	box := protocol.BoundingBox{
		Min: protocol.Point{X: min(a.X, b.X), Y: min(a.Y, b.Y)},
		Max: protocol.Point{X: max(a.X, b.X), Y: max(a.Y, b.Y)},
	}
	return s.annotate("box", protocol.Sam{Prompt: box})
}

func (s *Session) AddDefect(d protocol.Defect) (protocol.ClientMessage, error) {
	return s.annotate("new_defect", protocol.NewDefect{Defect: d})
}

func (s *Session) DeleteDefect(index uint64) (protocol.ClientMessage, error) {
	return s.annotate(fmt.Sprintf("delete %d", index), protocol.DeleteDefect{Index: index})
}

func (s *Session) EditDefect(index uint64, d protocol.Defect) (protocol.ClientMessage, error) {
	return s.annotate(fmt.Sprintf("edit %d", index), protocol.EditDefect{Index: index, Defect: d})
}

func (s *Session) annotate(label string, ev protocol.AnnotationEvent) (protocol.ClientMessage, error) {
	return s.gesture(label, func(v View) bool {
		_, ok := v.(AnnotationActive)
		return ok
	}, protocol.Annotate{Event: ev})
}

func (s *Session) gesture(label string, allowed func(View) bool, msg protocol.ClientMessage) (protocol.ClientMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !allowed(s.view) {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotReady, label, ViewName(s.view))
	}
	s.outbox.Track(msg.Kind(), replyKind(msg.Kind()), label, s.now())
	return msg, nil
}

// Pending lists requests still waiting for a reply, oldest first.
func (s *Session) Pending() []session.PendingRequest {
	return s.outbox.List()
}

// ExpirePending forgets requests older than after. The server drops illegal
// or failed requests without replying; this is how the operator finds out.
func (s *Session) ExpirePending(now time.Time, after time.Duration) []session.PendingRequest {
	return s.outbox.Expire(now, after)
}

func replyKind(kind uint16) uint16 {
	switch kind {
	case schema.MsgLoadFolder:
		return schema.MsgFolderContents
	case schema.MsgLoadKey:
		return schema.MsgInitialLoad
	default:
		return schema.MsgServerUpdated
	}
}
