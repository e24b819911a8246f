package annotator

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/danmuck/defectctl/internal/segment"
	"github.com/danmuck/defectctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

type stubFeatures struct{ face string }

func (stubFeatures) Size() (uint32, uint32) { return 2, 2 }

type stubStore struct {
	folders map[string][]protocol.FaceKey
	listErr error
	loadErr error
	loads   int
}

func (s *stubStore) List(_ context.Context, root string) ([]protocol.FaceKey, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	keys, ok := s.folders[root]
	if !ok {
		return nil, errors.New("no such folder")
	}
	return keys, nil
}

func (s *stubStore) Load(_ context.Context, _ string, key protocol.FaceKey) (protocol.ImageData, error) {
	s.loads++
	if s.loadErr != nil {
		return protocol.ImageData{}, s.loadErr
	}
	return protocol.ImageData{Width: 2, Height: 2, Pixels: []byte(key.Prefix + "-rgb-pixels")[:12]}, nil
}

var square = protocol.Polygon{{X: 1, Y: 1}, {X: 9, Y: 1}, {X: 9, Y: 9}, {X: 1, Y: 9}}

type stubSeg struct {
	encodes   int
	decodes   int
	encodeErr error
	decodeErr error
	polygon   protocol.Polygon
	prompts   []protocol.Prompt
}

func (s *stubSeg) segmenter() segment.Func {
	return segment.Func{
		EncodeFunc: func(_ context.Context, img protocol.ImageData) (segment.Features, error) {
			s.encodes++
			if s.encodeErr != nil {
				return nil, s.encodeErr
			}
			return stubFeatures{face: string(img.Pixels)}, nil
		},
		DecodeFunc: func(_ context.Context, _ segment.Features, p protocol.Prompt) (protocol.Polygon, error) {
			s.decodes++
			s.prompts = append(s.prompts, p)
			if s.decodeErr != nil {
				return nil, s.decodeErr
			}
			return s.polygon, nil
		},
	}
}

func newFixture(t *testing.T) (*Session, *stubStore, *stubSeg) {
	t.Helper()
	store := &stubStore{folders: map[string][]protocol.FaceKey{
		"/faces": {{Prefix: "board-01-top"}, {Prefix: "board-01-bottom"}},
		"/other": {{Prefix: "board-02-top", IsNarrow: true}},
	}}
	seg := &stubSeg{polygon: square}
	return NewSession(store, seg.segmenter(), Options{ID: t.Name()}), store, seg
}

func loaded(t *testing.T) (*Session, *stubStore, *stubSeg) {
	t.Helper()
	s, store, seg := newFixture(t)
	ctx := context.Background()
	_, err := s.Handle(ctx, protocol.LoadFolder{Path: "/faces"})
	require.NoError(t, err)
	_, err = s.Handle(ctx, protocol.LoadKey{Key: protocol.FaceKey{Prefix: "board-01-top"}})
	require.NoError(t, err)
	return s, store, seg
}

func annotations(t *testing.T, s *Session) []protocol.Defect {
	t.Helper()
	face, ok := s.State().(*FaceLoaded)
	require.True(t, ok, "state=%s", StateName(s.State()))
	return face.Annotations.Polygons
}

func TestLoadFolderListsFaces(t *testing.T) {
	testlog.Start(t)
	s, _, _ := newFixture(t)

	reply, err := s.Handle(context.Background(), protocol.LoadFolder{Path: "/faces"})
	require.NoError(t, err)
	require.Equal(t, protocol.FolderContents{Keys: []protocol.FaceKey{
		{Prefix: "board-01-top"}, {Prefix: "board-01-bottom"},
	}}, reply)
	require.Equal(t, FolderSelected{Root: "/faces", Listing: []protocol.FaceKey{
		{Prefix: "board-01-top"}, {Prefix: "board-01-bottom"},
	}}, s.State())
}

func TestLoadFolderFailureKeepsState(t *testing.T) {
	testlog.Start(t)
	s, store, _ := loaded(t)
	before := s.State()

	reply, err := s.Handle(context.Background(), protocol.LoadFolder{Path: "/missing"})
	require.Nil(t, reply)
	var ce *CollaboratorError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "list folder", ce.Op)
	require.Equal(t, before, s.State())

	store.listErr = errors.New("permission denied")
	_, err = s.Handle(context.Background(), protocol.LoadFolder{Path: "/faces"})
	require.ErrorAs(t, err, &ce)
	require.Equal(t, before, s.State())
}

func TestLoadKeyBeforeFolderIsDropped(t *testing.T) {
	testlog.Start(t)
	s, store, seg := newFixture(t)

	reply, err := s.Handle(context.Background(), protocol.LoadKey{Key: protocol.FaceKey{Prefix: "board-01-top"}})
	require.Nil(t, reply)
	require.ErrorIs(t, err, ErrPrecondition)
	require.Equal(t, NoFolder{}, s.State())
	require.Zero(t, store.loads)
	require.Zero(t, seg.encodes)
}

func TestAnnotateBeforeFaceIsDropped(t *testing.T) {
	testlog.Start(t)
	s, _, seg := newFixture(t)
	ctx := context.Background()
	events := []protocol.AnnotationEvent{
		protocol.Sam{Prompt: protocol.Click{Point: protocol.Point{X: 1, Y: 1}, Positive: true}},
		protocol.NewDefect{Defect: protocol.Defect{Polygon: square, Class: "scratch"}},
		protocol.DeleteDefect{Index: 0},
		protocol.EditDefect{Index: 0, Defect: protocol.Defect{Polygon: square}},
	}
	for _, ev := range events {
		reply, err := s.Handle(ctx, protocol.Annotate{Event: ev})
		require.Nil(t, reply)
		require.ErrorIs(t, err, ErrPrecondition)
		require.Equal(t, NoFolder{}, s.State())
	}

	_, err := s.Handle(ctx, protocol.LoadFolder{Path: "/faces"})
	require.NoError(t, err)
	selected := s.State()
	for _, ev := range events {
		reply, err := s.Handle(ctx, protocol.Annotate{Event: ev})
		require.Nil(t, reply)
		require.ErrorIs(t, err, ErrPrecondition)
		require.Equal(t, selected, s.State())
	}
	require.Zero(t, seg.decodes)
}

func TestLoadKeyRepliesWithImageAndEmptyAnnotations(t *testing.T) {
	testlog.Start(t)
	s, _, seg := newFixture(t)
	ctx := context.Background()
	_, err := s.Handle(ctx, protocol.LoadFolder{Path: "/faces"})
	require.NoError(t, err)

	key := protocol.FaceKey{Prefix: "board-01-top"}
	reply, err := s.Handle(ctx, protocol.LoadKey{Key: key})
	require.NoError(t, err)
	initial, ok := reply.(protocol.InitialLoad)
	require.True(t, ok, "reply=%T", reply)
	require.Equal(t, key, initial.Key)
	require.Equal(t, uint32(2), initial.Image.Width)
	require.NotNil(t, initial.Annotations.Polygons)
	require.Empty(t, initial.Annotations.Polygons)
	require.Equal(t, 1, seg.encodes)

	face := s.State().(*FaceLoaded)
	require.Equal(t, "/faces", face.Root)
	require.Equal(t, key, face.Key)
	require.NotNil(t, face.Features)
}

func TestClickAppendsSegmentedDefect(t *testing.T) {
	testlog.Start(t)
	s, _, seg := loaded(t)
	click := protocol.Click{Point: protocol.Point{X: 5, Y: 5}, Positive: true}

	reply, err := s.Handle(context.Background(), protocol.Annotate{Event: protocol.Sam{Prompt: click}})
	require.NoError(t, err)
	require.Equal(t, protocol.ServerUpdated{Annotations: protocol.AnnotationData{Polygons: []protocol.Defect{
		{Polygon: square, Class: DefaultDefectClass},
	}}}, reply)
	require.Equal(t, []protocol.Prompt{click}, seg.prompts)
	require.Len(t, annotations(t, s), 1)
}

func TestBoundingBoxAppendsSegmentedDefect(t *testing.T) {
	testlog.Start(t)
	s, _, seg := loaded(t)
	box := protocol.BoundingBox{Min: protocol.Point{X: 0, Y: 0}, Max: protocol.Point{X: 10, Y: 10}}

	_, err := s.Handle(context.Background(), protocol.Annotate{Event: protocol.Sam{Prompt: box}})
	require.NoError(t, err)
	reply, err := s.Handle(context.Background(), protocol.Annotate{Event: protocol.Sam{Prompt: box}})
	require.NoError(t, err)
	require.Len(t, reply.(protocol.ServerUpdated).Annotations.Polygons, 2)
	require.Equal(t, 2, seg.decodes)
}

func TestDefectClassIsConfigurable(t *testing.T) {
	testlog.Start(t)
	seg := &stubSeg{polygon: square}
	store := &stubStore{folders: map[string][]protocol.FaceKey{"/f": {{Prefix: "a"}}}}
	s := NewSession(store, seg.segmenter(), Options{DefectClass: "solder-bridge"})
	ctx := context.Background()
	_, err := s.Handle(ctx, protocol.LoadFolder{Path: "/f"})
	require.NoError(t, err)
	_, err = s.Handle(ctx, protocol.LoadKey{Key: protocol.FaceKey{Prefix: "a"}})
	require.NoError(t, err)

	reply, err := s.Handle(ctx, protocol.Annotate{Event: protocol.Sam{Prompt: protocol.Click{Positive: true}}})
	require.NoError(t, err)
	require.Equal(t, "solder-bridge", reply.(protocol.ServerUpdated).Annotations.Polygons[0].Class)
}

func TestSegmenterFailureKeepsAnnotations(t *testing.T) {
	testlog.Start(t)
	s, _, seg := loaded(t)
	ctx := context.Background()
	_, err := s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: protocol.Defect{Polygon: square, Class: "scratch"}}})
	require.NoError(t, err)
	before := annotations(t, s)

	seg.decodeErr = segment.ErrTimeout
	reply, err := s.Handle(ctx, protocol.Annotate{Event: protocol.Sam{Prompt: protocol.Click{Positive: true}}})
	require.Nil(t, reply)
	require.ErrorIs(t, err, segment.ErrTimeout)
	var ce *CollaboratorError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, before, annotations(t, s))

	seg.decodeErr = nil
	seg.polygon = protocol.Polygon{{X: 1, Y: 1}, {X: 2, Y: 2}}
	reply, err = s.Handle(ctx, protocol.Annotate{Event: protocol.Sam{Prompt: protocol.Click{Positive: true}}})
	require.Nil(t, reply)
	require.ErrorAs(t, err, &ce)
	require.Equal(t, before, annotations(t, s))
}

func TestLoadKeyFailureKeepsPreviousFace(t *testing.T) {
	testlog.Start(t)
	s, store, seg := loaded(t)
	ctx := context.Background()
	_, err := s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: protocol.Defect{Polygon: square}}})
	require.NoError(t, err)
	before := s.State()

	store.loadErr = errors.New("decode tiff: unexpected EOF")
	reply, err := s.Handle(ctx, protocol.LoadKey{Key: protocol.FaceKey{Prefix: "board-01-bottom"}})
	require.Nil(t, reply)
	var ce *CollaboratorError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "load face", ce.Op)
	require.Equal(t, before, s.State())

	store.loadErr = nil
	seg.encodeErr = errors.New("model unavailable")
	_, err = s.Handle(ctx, protocol.LoadKey{Key: protocol.FaceKey{Prefix: "board-01-bottom"}})
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "encode", ce.Op)
	require.Equal(t, before, s.State())
}

func TestReloadDiscardsAnnotations(t *testing.T) {
	testlog.Start(t)
	s, _, _ := loaded(t)
	ctx := context.Background()
	for range 3 {
		_, err := s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: protocol.Defect{Polygon: square}}})
		require.NoError(t, err)
	}
	require.Len(t, annotations(t, s), 3)

	reply, err := s.Handle(ctx, protocol.LoadKey{Key: protocol.FaceKey{Prefix: "board-01-top"}})
	require.NoError(t, err)
	require.Empty(t, reply.(protocol.InitialLoad).Annotations.Polygons)
	require.Empty(t, annotations(t, s))
}

func TestLoadFolderDropsActiveFace(t *testing.T) {
	testlog.Start(t)
	s, _, _ := loaded(t)
	ctx := context.Background()
	_, err := s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: protocol.Defect{Polygon: square}}})
	require.NoError(t, err)

	_, err = s.Handle(ctx, protocol.LoadFolder{Path: "/other"})
	require.NoError(t, err)
	require.Equal(t, FolderSelected{Root: "/other", Listing: []protocol.FaceKey{{Prefix: "board-02-top", IsNarrow: true}}}, s.State())

	reply, err := s.Handle(ctx, protocol.Annotate{Event: protocol.DeleteDefect{Index: 0}})
	require.Nil(t, reply)
	require.ErrorIs(t, err, ErrPrecondition)
}

func TestNewDeleteEditByIndex(t *testing.T) {
	testlog.Start(t)
	s, _, _ := loaded(t)
	ctx := context.Background()
	mk := func(class string) protocol.Defect { return protocol.Defect{Polygon: square, Class: class} }
	for _, c := range []string{"a", "b", "c"} {
		_, err := s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: mk(c)}})
		require.NoError(t, err)
	}

	reply, err := s.Handle(ctx, protocol.Annotate{Event: protocol.DeleteDefect{Index: 1}})
	require.NoError(t, err)
	require.Equal(t, []protocol.Defect{mk("a"), mk("c")}, reply.(protocol.ServerUpdated).Annotations.Polygons)

	reply, err = s.Handle(ctx, protocol.Annotate{Event: protocol.EditDefect{Index: 1, Defect: mk("z")}})
	require.NoError(t, err)
	require.Equal(t, []protocol.Defect{mk("a"), mk("z")}, reply.(protocol.ServerUpdated).Annotations.Polygons)
	require.Equal(t, []protocol.Defect{mk("a"), mk("z")}, annotations(t, s))
}

func TestOutOfRangeIndexIsNoOp(t *testing.T) {
	testlog.Start(t)
	s, _, _ := loaded(t)
	ctx := context.Background()
	_, err := s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: protocol.Defect{Polygon: square, Class: "a"}}})
	require.NoError(t, err)
	before := annotations(t, s)

	for _, ev := range []protocol.AnnotationEvent{
		protocol.DeleteDefect{Index: 1},
		protocol.DeleteDefect{Index: ^uint64(0)},
		protocol.EditDefect{Index: 5, Defect: protocol.Defect{Polygon: square}},
	} {
		reply, err := s.Handle(ctx, protocol.Annotate{Event: ev})
		require.Nil(t, reply)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		require.ErrorIs(t, err, ErrPrecondition)
		require.Equal(t, before, annotations(t, s))
	}
}

func TestDegeneratePolygonRejected(t *testing.T) {
	testlog.Start(t)
	s, _, _ := loaded(t)
	ctx := context.Background()
	_, err := s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: protocol.Defect{Polygon: square}}})
	require.NoError(t, err)
	line := protocol.Defect{Polygon: protocol.Polygon{{X: 0, Y: 0}, {X: 1, Y: 1}}}

	_, err = s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: line}})
	require.ErrorIs(t, err, ErrDegeneratePolygon)
	_, err = s.Handle(ctx, protocol.Annotate{Event: protocol.EditDefect{Index: 0, Defect: line}})
	require.ErrorIs(t, err, ErrDegeneratePolygon)
	require.Len(t, annotations(t, s), 1)
	require.Equal(t, square, annotations(t, s)[0].Polygon)
}

func TestRepliesDoNotAliasSessionState(t *testing.T) {
	testlog.Start(t)
	s, _, _ := loaded(t)
	ctx := context.Background()
	poly := square.Clone()
	reply, err := s.Handle(ctx, protocol.Annotate{Event: protocol.NewDefect{Defect: protocol.Defect{Polygon: poly}}})
	require.NoError(t, err)

	poly[0].X = 99
	reply.(protocol.ServerUpdated).Annotations.Polygons[0].Polygon[1].X = 99
	require.Equal(t, square, annotations(t, s)[0].Polygon)
}
