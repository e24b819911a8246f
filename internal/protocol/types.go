package protocol

import (
	"fmt"

	"github.com/danmuck/defectctl/internal/protocol/schema"
)

// FaceKey identifies one board-face image within a folder.
type FaceKey struct {
	Prefix   string
	IsNarrow bool
}

// FileName returns the on-disk name for the key with the given extension.
func (k FaceKey) FileName(ext string) string {
	return k.Prefix + "." + ext
}

// ImageData is a row-major RGB raster, three bytes per pixel.
type ImageData struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (img ImageData) Validate() error {
	want := uint64(img.Width) * uint64(img.Height) * 3
	if uint64(len(img.Pixels)) != want {
		return fmt.Errorf("%w: image %dx%d has %d pixel bytes, want %d", ErrImageSize, img.Width, img.Height, len(img.Pixels), want)
	}
	return nil
}

// Point is a position in image pixel coordinates.
type Point struct {
	X float32
	Y float32
}

type Polygon []Point

type Defect struct {
	Polygon Polygon
	Class   string
}

// AnnotationData is the ordered defect set for one loaded face.
type AnnotationData struct {
	Polygons []Defect
}

// Clone returns a deep copy. Empty sets stay non-nil.
func (a AnnotationData) Clone() AnnotationData {
	out := AnnotationData{Polygons: make([]Defect, len(a.Polygons))}
	for i, d := range a.Polygons {
		out.Polygons[i] = Defect{Polygon: d.Polygon.Clone(), Class: d.Class}
	}
	return out
}

func (p Polygon) Clone() Polygon {
	out := make(Polygon, len(p))
	copy(out, p)
	return out
}

// Prompt is a segmentation hint. It is either Click or BoundingBox.
type Prompt interface {
	promptTag() uint8
}

type Click struct {
	Point    Point
	Positive bool
}

type BoundingBox struct {
	Min Point
	Max Point
}

func (Click) promptTag() uint8       { return schema.EventClick }
func (BoundingBox) promptTag() uint8 { return schema.EventBoundingBox }

// AnnotationEvent is one edit requested by the client.
type AnnotationEvent interface {
	eventTag() uint8
}

// Sam asks the server to segment a region from a prompt.
type Sam struct {
	Prompt Prompt
}

type NewDefect struct {
	Defect Defect
}

type DeleteDefect struct {
	Index uint64
}

type EditDefect struct {
	Index  uint64
	Defect Defect
}

func (e Sam) eventTag() uint8 {
	if e.Prompt == nil {
		return 0
	}
	return e.Prompt.promptTag()
}
func (NewDefect) eventTag() uint8    { return schema.EventNewDefect }
func (DeleteDefect) eventTag() uint8 { return schema.EventDelete }
func (EditDefect) eventTag() uint8   { return schema.EventEditDefect }

// ClientMessage is a client to server message.
type ClientMessage interface {
	Kind() uint16
	isClient()
}

type LoadFolder struct {
	Path string
}

type LoadKey struct {
	Key FaceKey
}

type Annotate struct {
	Event AnnotationEvent
}

func (LoadFolder) Kind() uint16 { return schema.MsgLoadFolder }
func (LoadKey) Kind() uint16    { return schema.MsgLoadKey }
func (Annotate) Kind() uint16   { return schema.MsgAnnotate }

func (LoadFolder) isClient() {}
func (LoadKey) isClient()    {}
func (Annotate) isClient()   {}

// ServerMessage is a server to client message.
type ServerMessage interface {
	Kind() uint16
	isServer()
}

type FolderContents struct {
	Keys []FaceKey
}

type InitialLoad struct {
	Key         FaceKey
	Image       ImageData
	Annotations AnnotationData
}

type ServerUpdated struct {
	Annotations AnnotationData
}

func (FolderContents) Kind() uint16 { return schema.MsgFolderContents }
func (InitialLoad) Kind() uint16    { return schema.MsgInitialLoad }
func (ServerUpdated) Kind() uint16  { return schema.MsgServerUpdated }

func (FolderContents) isServer() {}
func (InitialLoad) isServer()    {}
func (ServerUpdated) isServer()  {}

// KindName returns a short label for metrics and logs.
func KindName(kind uint16) string {
	switch kind {
	case schema.MsgLoadFolder:
		return "load_folder"
	case schema.MsgLoadKey:
		return "load_key"
	case schema.MsgAnnotate:
		return "annotate"
	case schema.MsgFolderContents:
		return "folder_contents"
	case schema.MsgInitialLoad:
		return "initial_load"
	case schema.MsgServerUpdated:
		return "server_updated"
	default:
		return fmt.Sprintf("kind(%#04x)", kind)
	}
}
