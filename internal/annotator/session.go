// Package annotator holds the per-connection server session: which folder is
// open, which face is loaded and the defects drawn on it.
//
// A Session is owned by exactly one connection goroutine and is not safe for
// concurrent use.
package annotator

import (
	"context"
	"fmt"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/danmuck/defectctl/internal/segment"
)

const DefaultDefectClass = "unclassified"

// FaceStore lists folders and loads face images.
type FaceStore interface {
	List(ctx context.Context, root string) ([]protocol.FaceKey, error)
	Load(ctx context.Context, root string, key protocol.FaceKey) (protocol.ImageData, error)
}

type Options struct {
	// DefectClass labels defects produced by segmentation prompts.
	DefectClass string
	// ID tags log lines, usually the connection id.
	ID string
}

type Session struct {
	store FaceStore
	seg   segment.Segmenter
	class string
	id    string
	state State
}

func NewSession(store FaceStore, seg segment.Segmenter, opts Options) *Session {
	if opts.DefectClass == "" {
		opts.DefectClass = DefaultDefectClass
	}
	return &Session{
		store: store,
		seg:   seg,
		class: opts.DefectClass,
		id:    opts.ID,
		state: NoFolder{},
	}
}

// State returns the current state. FaceLoaded values are copies.
func (s *Session) State() State {
	if f, ok := s.state.(*FaceLoaded); ok {
		cp := *f
		cp.Listing = cloneKeys(f.Listing)
		cp.Annotations = f.Annotations.Clone()
		return &cp
	}
	return s.state
}

// Handle applies one client message and returns the reply, if any.
//
// A nil reply with ErrPrecondition means the message was not legal in the
// current state. A *CollaboratorError means the face store or the segmenter
// failed. In both cases the state is unchanged.
func (s *Session) Handle(ctx context.Context, msg protocol.ClientMessage) (protocol.ServerMessage, error) {
	logs.Tracef("annotator.Session.Handle id=%s state=%s kind=%s", s.id, StateName(s.state), protocol.KindName(msg.Kind()))
	switch m := msg.(type) {
	case protocol.LoadFolder:
		return s.loadFolder(ctx, m.Path)
	case protocol.LoadKey:
		return s.loadKey(ctx, m.Key)
	case protocol.Annotate:
		return s.annotate(ctx, m.Event)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
}

func (s *Session) loadFolder(ctx context.Context, root string) (protocol.ServerMessage, error) {
	keys, err := s.store.List(ctx, root)
	if err != nil {
		return nil, collab("list folder", err)
	}
	s.state = FolderSelected{Root: root, Listing: keys}
	logs.Debugf("annotator.Session.loadFolder id=%s root=%q faces=%d", s.id, root, len(keys))
	return protocol.FolderContents{Keys: cloneKeys(keys)}, nil
}

func (s *Session) loadKey(ctx context.Context, key protocol.FaceKey) (protocol.ServerMessage, error) {
	var root string
	var listing []protocol.FaceKey
	switch st := s.state.(type) {
	case FolderSelected:
		root, listing = st.Root, st.Listing
	case *FaceLoaded:
		root, listing = st.Root, st.Listing
	default:
		return nil, fmt.Errorf("%w: load_key in %s", ErrPrecondition, StateName(s.state))
	}

	img, err := s.store.Load(ctx, root, key)
	if err != nil {
		return nil, collab("load face", err)
	}
	features, err := s.seg.Encode(ctx, img)
	if err != nil {
		return nil, collab("encode", err)
	}

	loaded := &FaceLoaded{
		Root:        root,
		Listing:     listing,
		Key:         key,
		Features:    features,
		Annotations: protocol.AnnotationData{Polygons: []protocol.Defect{}},
	}
	s.state = loaded
	logs.Debugf("annotator.Session.loadKey id=%s key=%q size=%dx%d", s.id, key.Prefix, img.Width, img.Height)
	return protocol.InitialLoad{
		Key:         key,
		Image:       img,
		Annotations: loaded.Annotations.Clone(),
	}, nil
}

func (s *Session) annotate(ctx context.Context, ev protocol.AnnotationEvent) (protocol.ServerMessage, error) {
	face, ok := s.state.(*FaceLoaded)
	if !ok {
		return nil, fmt.Errorf("%w: annotate in %s", ErrPrecondition, StateName(s.state))
	}
	defects := face.Annotations.Polygons

	switch e := ev.(type) {
	case protocol.Sam:
		poly, err := s.seg.Decode(ctx, face.Features, e.Prompt)
		if err != nil {
			return nil, collab("decode", err)
		}
		if len(poly) < 3 {
			return nil, collab("decode", fmt.Errorf("segmenter returned %d points", len(poly)))
		}
		defects = append(defects, protocol.Defect{Polygon: poly.Clone(), Class: s.class})
	case protocol.NewDefect:
		if len(e.Defect.Polygon) < 3 {
			return nil, fmt.Errorf("%w: got %d", ErrDegeneratePolygon, len(e.Defect.Polygon))
		}
		defects = append(defects, cloneDefect(e.Defect))
	case protocol.DeleteDefect:
		if e.Index >= uint64(len(defects)) {
			return nil, fmt.Errorf("%w: delete %d of %d", ErrIndexOutOfRange, e.Index, len(defects))
		}
		defects = append(defects[:e.Index], defects[e.Index+1:]...)
	case protocol.EditDefect:
		if e.Index >= uint64(len(defects)) {
			return nil, fmt.Errorf("%w: edit %d of %d", ErrIndexOutOfRange, e.Index, len(defects))
		}
		if len(e.Defect.Polygon) < 3 {
			return nil, fmt.Errorf("%w: got %d", ErrDegeneratePolygon, len(e.Defect.Polygon))
		}
		defects[e.Index] = cloneDefect(e.Defect)
	default:
		return nil, fmt.Errorf("%w: event %T", ErrUnknownMessage, ev)
	}

	face.Annotations.Polygons = defects
	logs.Debugf("annotator.Session.annotate id=%s event=%T defects=%d", s.id, ev, len(defects))
	return protocol.ServerUpdated{Annotations: face.Annotations.Clone()}, nil
}

func cloneKeys(keys []protocol.FaceKey) []protocol.FaceKey {
	out := make([]protocol.FaceKey, len(keys))
	copy(out, keys)
	return out
}

func cloneDefect(d protocol.Defect) protocol.Defect {
	return protocol.Defect{Polygon: d.Polygon.Clone(), Class: d.Class}
}
