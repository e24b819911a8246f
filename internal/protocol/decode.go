package protocol

import (
	"fmt"

	"github.com/danmuck/defectctl/internal/protocol/frame"
	"github.com/danmuck/defectctl/internal/protocol/schema"
	"github.com/danmuck/defectctl/internal/protocol/tlv"
)

// DecodeClient decodes one envelope sent by a client. Every failure wraps
// ErrDecode. The result never aliases b.
func DecodeClient(b []byte) (ClientMessage, error) {
	d, r, err := begin(b, false)
	if err != nil {
		return nil, err
	}
	switch d.kind {
	case schema.MsgLoadFolder:
		path, err := value(d, r, schema.FieldPath, tlv.Field.AsString)
		if err != nil {
			return nil, err
		}
		return LoadFolder{Path: path}, nil
	case schema.MsgLoadKey:
		key, err := d.faceKey("key", r.one(schema.FieldKey))
		if err != nil {
			return nil, err
		}
		return LoadKey{Key: key}, nil
	case schema.MsgAnnotate:
		ev, err := d.event(r.one(schema.FieldEvent))
		if err != nil {
			return nil, err
		}
		return Annotate{Event: ev}, nil
	}
	return nil, d.fail(ErrUnknownKind)
}

// DecodeServer decodes one envelope sent by a server.
func DecodeServer(b []byte) (ServerMessage, error) {
	d, r, err := begin(b, true)
	if err != nil {
		return nil, err
	}
	switch d.kind {
	case schema.MsgFolderContents:
		items := r.many(schema.FieldKeys)
		keys := make([]FaceKey, 0, len(items))
		for i, f := range items {
			k, err := d.faceKey(fmt.Sprintf("keys[%d]", i), f)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return FolderContents{Keys: keys}, nil
	case schema.MsgInitialLoad:
		key, err := d.faceKey("key", r.one(schema.FieldKey))
		if err != nil {
			return nil, err
		}
		img, err := d.image(r.one(schema.FieldImage))
		if err != nil {
			return nil, err
		}
		ann, err := d.annotations("annotations", r.one(schema.FieldAnnotations))
		if err != nil {
			return nil, err
		}
		return InitialLoad{Key: key, Image: img, Annotations: ann}, nil
	case schema.MsgServerUpdated:
		ann, err := d.annotations("annotations", r.one(schema.FieldUpdated))
		if err != nil {
			return nil, err
		}
		return ServerUpdated{Annotations: ann}, nil
	}
	return nil, d.fail(ErrUnknownKind)
}

// PeekKind returns the envelope kind without decoding the payload.
func PeekKind(b []byte) (uint16, error) {
	if len(b) < frame.HeaderLen {
		return 0, &DecodeError{Err: frame.ErrShortHeader}
	}
	h, err := frame.DecodeHeader(b[:frame.HeaderLen])
	if err != nil {
		return 0, &DecodeError{Err: err}
	}
	return h.Kind, nil
}

type decoder struct {
	kind uint16
	path []string
}

// record is one validated field sequence and the schema it satisfied.
type record struct {
	s      schema.Schema
	fields []tlv.Field
}

func (r record) one(id uint16) tlv.Field {
	f, _ := tlv.GetField(r.fields, id)
	return f
}

func (r record) many(id uint16) []tlv.Field {
	return tlv.AllFields(r.fields, id)
}

func begin(b []byte, fromServer bool) (*decoder, record, error) {
	f, err := frame.Parse(b, frame.DefaultLimits())
	if err != nil {
		return nil, record{}, &DecodeError{Err: err}
	}
	d := &decoder{kind: f.Header.Kind}
	s, ok := schema.Message(d.kind)
	if !ok {
		return nil, record{}, d.fail(ErrUnknownKind)
	}
	flagged := f.Header.Flags&frame.FlagServer != 0
	if flagged != fromServer || schema.IsServerKind(d.kind) != fromServer {
		return nil, record{}, d.fail(ErrDirection)
	}
	r, err := d.open(s, f.Payload)
	if err != nil {
		return nil, record{}, err
	}
	return d, r, nil
}

func (d *decoder) fail(err error) error {
	path := make([]string, len(d.path))
	copy(path, d.path)
	return &DecodeError{Kind: d.kind, Path: path, Err: err}
}

func (d *decoder) failAt(name string, err error) error {
	d.push(name)
	defer d.pop()
	return d.fail(err)
}

func (d *decoder) push(name string) { d.path = append(d.path, name) }
func (d *decoder) pop()             { d.path = d.path[:len(d.path)-1] }

func (d *decoder) open(s schema.Schema, payload []byte) (record, error) {
	if len(d.path) > tlv.MaxDepth {
		return record{}, d.fail(ErrTooDeep)
	}
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return record{}, d.fail(err)
	}
	if err := schema.Validate(s, fields); err != nil {
		return record{}, d.fail(err)
	}
	return record{s: s, fields: fields}, nil
}

// value reads the singular field id from r with get, attaching the field path on failure.
func value[T any](d *decoder, r record, id uint16, get func(tlv.Field) (T, error)) (T, error) {
	v, err := get(r.one(id))
	if err != nil {
		var zero T
		return zero, d.failAt(r.s.FieldName(id), err)
	}
	return v, nil
}

func (d *decoder) faceKey(name string, f tlv.Field) (FaceKey, error) {
	d.push(name)
	defer d.pop()
	r, err := d.open(schema.FaceKey, f.Value)
	if err != nil {
		return FaceKey{}, err
	}
	prefix, err := value(d, r, schema.FieldPrefix, tlv.Field.AsString)
	if err != nil {
		return FaceKey{}, err
	}
	narrow, err := value(d, r, schema.FieldIsNarrow, tlv.Field.AsBool)
	if err != nil {
		return FaceKey{}, err
	}
	return FaceKey{Prefix: prefix, IsNarrow: narrow}, nil
}

func (d *decoder) image(f tlv.Field) (ImageData, error) {
	d.push("image")
	defer d.pop()
	r, err := d.open(schema.Image, f.Value)
	if err != nil {
		return ImageData{}, err
	}
	w, err := value(d, r, schema.FieldWidth, tlv.Field.AsU32)
	if err != nil {
		return ImageData{}, err
	}
	h, err := value(d, r, schema.FieldHeight, tlv.Field.AsU32)
	if err != nil {
		return ImageData{}, err
	}
	// Checked before copying so a bogus size never allocates.
	img := ImageData{Width: w, Height: h, Pixels: r.one(schema.FieldPixels).Value}
	if err := img.Validate(); err != nil {
		return ImageData{}, d.fail(err)
	}
	pixels, err := value(d, r, schema.FieldPixels, tlv.Field.AsBytes)
	if err != nil {
		return ImageData{}, err
	}
	img.Pixels = pixels
	return img, nil
}

func (d *decoder) point(name string, f tlv.Field) (Point, error) {
	d.push(name)
	defer d.pop()
	r, err := d.open(schema.Point, f.Value)
	if err != nil {
		return Point{}, err
	}
	x, err := value(d, r, schema.FieldX, tlv.Field.AsF32)
	if err != nil {
		return Point{}, err
	}
	y, err := value(d, r, schema.FieldY, tlv.Field.AsF32)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

func (d *decoder) defect(name string, f tlv.Field) (Defect, error) {
	d.push(name)
	defer d.pop()
	r, err := d.open(schema.Defect, f.Value)
	if err != nil {
		return Defect{}, err
	}
	items := r.many(schema.FieldPoints)
	poly := make(Polygon, 0, len(items))
	for i, pf := range items {
		p, err := d.point(fmt.Sprintf("points[%d]", i), pf)
		if err != nil {
			return Defect{}, err
		}
		poly = append(poly, p)
	}
	class, err := value(d, r, schema.FieldClass, tlv.Field.AsString)
	if err != nil {
		return Defect{}, err
	}
	return Defect{Polygon: poly, Class: class}, nil
}

func (d *decoder) annotations(name string, f tlv.Field) (AnnotationData, error) {
	d.push(name)
	defer d.pop()
	r, err := d.open(schema.Annotations, f.Value)
	if err != nil {
		return AnnotationData{}, err
	}
	items := r.many(schema.FieldPolygons)
	out := AnnotationData{Polygons: make([]Defect, 0, len(items))}
	for i, df := range items {
		def, err := d.defect(fmt.Sprintf("polygons[%d]", i), df)
		if err != nil {
			return AnnotationData{}, err
		}
		out.Polygons = append(out.Polygons, def)
	}
	return out, nil
}

func (d *decoder) event(f tlv.Field) (AnnotationEvent, error) {
	d.push("event")
	defer d.pop()
	r, err := d.open(schema.Event, f.Value)
	if err != nil {
		return nil, err
	}
	tag, err := value(d, r, schema.FieldTag, tlv.Field.AsU8)
	if err != nil {
		return nil, err
	}
	s, ok := schema.Body(tag)
	if !ok {
		return nil, d.failAt("tag", fmt.Errorf("%w: %d", ErrUnknownTag, tag))
	}
	d.push("body")
	defer d.pop()
	body, err := d.open(s, r.one(schema.FieldBody).Value)
	if err != nil {
		return nil, err
	}

	switch tag {
	case schema.EventClick:
		p, err := d.point("point", body.one(schema.FieldClickPoint))
		if err != nil {
			return nil, err
		}
		positive, err := value(d, body, schema.FieldClickPositive, tlv.Field.AsBool)
		if err != nil {
			return nil, err
		}
		return Sam{Prompt: Click{Point: p, Positive: positive}}, nil
	case schema.EventBoundingBox:
		lo, err := d.point("min", body.one(schema.FieldBoxMin))
		if err != nil {
			return nil, err
		}
		hi, err := d.point("max", body.one(schema.FieldBoxMax))
		if err != nil {
			return nil, err
		}
		return Sam{Prompt: BoundingBox{Min: lo, Max: hi}}, nil
	case schema.EventNewDefect:
		def, err := d.defect("defect", body.one(schema.FieldDefect))
		if err != nil {
			return nil, err
		}
		return NewDefect{Defect: def}, nil
	case schema.EventDelete:
		idx, err := value(d, body, schema.FieldIndex, tlv.Field.AsU64)
		if err != nil {
			return nil, err
		}
		return DeleteDefect{Index: idx}, nil
	default:
		idx, err := value(d, body, schema.FieldIndex, tlv.Field.AsU64)
		if err != nil {
			return nil, err
		}
		def, err := d.defect("defect", body.one(schema.FieldEditDefect))
		if err != nil {
			return nil, err
		}
		return EditDefect{Index: idx, Defect: def}, nil
	}
}
