package protocol

import (
	"fmt"
	"io"
	"math"

	"github.com/danmuck/defectctl/internal/protocol/frame"
	"github.com/danmuck/defectctl/internal/protocol/schema"
	"github.com/danmuck/defectctl/internal/protocol/tlv"
)

// Message is any client or server message.
type Message interface {
	Kind() uint16
}

var encodeLimits = frame.Limits{MaxPayloadBytes: math.MaxUint32}

// Marshal encodes msg as one complete envelope.
func Marshal(msg Message) ([]byte, error) {
	fields, err := messageFields(msg)
	if err != nil {
		return nil, err
	}
	var flags uint32
	if schema.IsServerKind(msg.Kind()) {
		flags = frame.FlagServer
	}
	return frame.Bytes(frame.Frame{
		Header:  frame.Header{Kind: msg.Kind(), Flags: flags},
		Payload: tlv.EncodeFields(fields),
	}, encodeLimits)
}

// Encode writes msg to w as one envelope.
func Encode(w io.Writer, msg Message) error {
	b, err := Marshal(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func messageFields(msg Message) ([]tlv.Field, error) {
	switch m := msg.(type) {
	case LoadFolder:
		return []tlv.Field{tlv.String(schema.FieldPath, m.Path)}, nil
	case LoadKey:
		return []tlv.Field{tlv.Struct(schema.FieldKey, faceKeyFields(m.Key)...)}, nil
	case Annotate:
		ev, err := eventFields(m.Event)
		if err != nil {
			return nil, err
		}
		return []tlv.Field{tlv.Struct(schema.FieldEvent, ev...)}, nil
	case FolderContents:
		fields := make([]tlv.Field, 0, len(m.Keys))
		for _, k := range m.Keys {
			fields = append(fields, tlv.Struct(schema.FieldKeys, faceKeyFields(k)...))
		}
		return fields, nil
	case InitialLoad:
		return []tlv.Field{
			tlv.Struct(schema.FieldKey, faceKeyFields(m.Key)...),
			tlv.Struct(schema.FieldImage, imageFields(m.Image)...),
			tlv.Struct(schema.FieldAnnotations, annotationFields(m.Annotations)...),
		}, nil
	case ServerUpdated:
		return []tlv.Field{tlv.Struct(schema.FieldUpdated, annotationFields(m.Annotations)...)}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidMessage, msg)
	}
}

func faceKeyFields(k FaceKey) []tlv.Field {
	return []tlv.Field{
		tlv.String(schema.FieldPrefix, k.Prefix),
		tlv.Bool(schema.FieldIsNarrow, k.IsNarrow),
	}
}

func imageFields(img ImageData) []tlv.Field {
	return []tlv.Field{
		tlv.U32(schema.FieldWidth, img.Width),
		tlv.U32(schema.FieldHeight, img.Height),
		tlv.Bytes(schema.FieldPixels, img.Pixels),
	}
}

func pointField(id uint16, p Point) tlv.Field {
	return tlv.Struct(id, tlv.F32(schema.FieldX, p.X), tlv.F32(schema.FieldY, p.Y))
}

func defectFields(d Defect) []tlv.Field {
	fields := make([]tlv.Field, 0, len(d.Polygon)+1)
	for _, p := range d.Polygon {
		fields = append(fields, pointField(schema.FieldPoints, p))
	}
	return append(fields, tlv.String(schema.FieldClass, d.Class))
}

func annotationFields(a AnnotationData) []tlv.Field {
	fields := make([]tlv.Field, 0, len(a.Polygons))
	for _, d := range a.Polygons {
		fields = append(fields, tlv.Struct(schema.FieldPolygons, defectFields(d)...))
	}
	return fields
}

func eventFields(ev AnnotationEvent) ([]tlv.Field, error) {
	var body []tlv.Field
	switch e := ev.(type) {
	case Sam:
		switch p := e.Prompt.(type) {
		case Click:
			body = []tlv.Field{
				pointField(schema.FieldClickPoint, p.Point),
				tlv.Bool(schema.FieldClickPositive, p.Positive),
			}
		case BoundingBox:
			body = []tlv.Field{
				pointField(schema.FieldBoxMin, p.Min),
				pointField(schema.FieldBoxMax, p.Max),
			}
		default:
			return nil, fmt.Errorf("%w: prompt %T", ErrInvalidMessage, e.Prompt)
		}
	case NewDefect:
		body = []tlv.Field{tlv.Struct(schema.FieldDefect, defectFields(e.Defect)...)}
	case DeleteDefect:
		body = []tlv.Field{tlv.U64(schema.FieldIndex, e.Index)}
	case EditDefect:
		body = []tlv.Field{
			tlv.U64(schema.FieldIndex, e.Index),
			tlv.Struct(schema.FieldEditDefect, defectFields(e.Defect)...),
		}
	default:
		return nil, fmt.Errorf("%w: event %T", ErrInvalidMessage, ev)
	}
	return []tlv.Field{
		tlv.U8(schema.FieldTag, ev.eventTag()),
		tlv.Struct(schema.FieldBody, body...),
	}, nil
}
