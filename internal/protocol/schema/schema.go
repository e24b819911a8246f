package schema

import (
	"fmt"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol/tlv"
)

// Message kinds carried in the envelope.
const (
	MsgLoadFolder uint16 = 0x0001
	MsgLoadKey    uint16 = 0x0002
	MsgAnnotate   uint16 = 0x0003

	MsgFolderContents uint16 = 0x0101
	MsgInitialLoad    uint16 = 0x0102
	MsgServerUpdated  uint16 = 0x0103
)

// Annotation event tags carried in the event struct.
const (
	EventClick       uint8 = 1
	EventBoundingBox uint8 = 2
	EventNewDefect   uint8 = 3
	EventDelete      uint8 = 4
	EventEditDefect  uint8 = 5
)

// Field IDs. IDs are scoped to the message or struct that contains them.
const (
	// load_folder, load_key, annotate, folder_contents
	FieldPath  uint16 = 1
	FieldKey   uint16 = 1
	FieldEvent uint16 = 1
	FieldKeys  uint16 = 1

	// initial_load
	FieldImage       uint16 = 2
	FieldAnnotations uint16 = 3

	// server_updated
	FieldUpdated uint16 = 1

	// face_key
	FieldPrefix   uint16 = 1
	FieldIsNarrow uint16 = 2

	// image
	FieldWidth  uint16 = 1
	FieldHeight uint16 = 2
	FieldPixels uint16 = 3

	// point
	FieldX uint16 = 1
	FieldY uint16 = 2

	// defect
	FieldPoints uint16 = 1
	FieldClass  uint16 = 2

	// annotations
	FieldPolygons uint16 = 1

	// event
	FieldTag  uint16 = 1
	FieldBody uint16 = 2

	// event bodies
	FieldClickPoint    uint16 = 1
	FieldClickPositive uint16 = 2
	FieldBoxMin        uint16 = 1
	FieldBoxMax        uint16 = 2
	FieldDefect        uint16 = 1
	FieldIndex         uint16 = 1
	FieldEditDefect    uint16 = 2
)

// Cardinality says how often a field may occur.
type Cardinality uint8

const (
	One  Cardinality = iota // exactly once
	Many                    // zero or more, wire order is sequence order
)

type Requirement struct {
	ID   uint16
	Name string
	Type uint8
	Card Cardinality
}

// Schema is the strict field layout of one message kind or nested struct.
type Schema struct {
	Name   string
	Fields []Requirement
}

func (s Schema) lookup(id uint16) (Requirement, bool) {
	for _, r := range s.Fields {
		if r.ID == id {
			return r, true
		}
	}
	return Requirement{}, false
}

type ValidationError struct {
	Schema  string
	FieldID uint16
	Reason  string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: %s: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("schema: %s field=%d: %s", e.Schema, e.FieldID, e.Reason)
}

var (
	FaceKey = Schema{Name: "face_key", Fields: []Requirement{
		{FieldPrefix, "prefix", tlv.TypeString, One},
		{FieldIsNarrow, "is_narrow", tlv.TypeBool, One},
	}}
	Image = Schema{Name: "image", Fields: []Requirement{
		{FieldWidth, "width", tlv.TypeU32, One},
		{FieldHeight, "height", tlv.TypeU32, One},
		{FieldPixels, "pixels", tlv.TypeBytes, One},
	}}
	Point = Schema{Name: "point", Fields: []Requirement{
		{FieldX, "x", tlv.TypeF32, One},
		{FieldY, "y", tlv.TypeF32, One},
	}}
	Defect = Schema{Name: "defect", Fields: []Requirement{
		{FieldPoints, "points", tlv.TypeStruct, Many},
		{FieldClass, "class", tlv.TypeString, One},
	}}
	Annotations = Schema{Name: "annotations", Fields: []Requirement{
		{FieldPolygons, "polygons", tlv.TypeStruct, Many},
	}}
	Event = Schema{Name: "event", Fields: []Requirement{
		{FieldTag, "tag", tlv.TypeU8, One},
		{FieldBody, "body", tlv.TypeStruct, One},
	}}
)

var bodies = map[uint8]Schema{
	EventClick: {Name: "click", Fields: []Requirement{
		{FieldClickPoint, "point", tlv.TypeStruct, One},
		{FieldClickPositive, "positive", tlv.TypeBool, One},
	}},
	EventBoundingBox: {Name: "bounding_box", Fields: []Requirement{
		{FieldBoxMin, "min", tlv.TypeStruct, One},
		{FieldBoxMax, "max", tlv.TypeStruct, One},
	}},
	EventNewDefect: {Name: "new_defect", Fields: []Requirement{
		{FieldDefect, "defect", tlv.TypeStruct, One},
	}},
	EventDelete: {Name: "delete", Fields: []Requirement{
		{FieldIndex, "index", tlv.TypeU64, One},
	}},
	EventEditDefect: {Name: "edit_defect", Fields: []Requirement{
		{FieldIndex, "index", tlv.TypeU64, One},
		{FieldEditDefect, "defect", tlv.TypeStruct, One},
	}},
}

var messages = map[uint16]Schema{
	MsgLoadFolder: {Name: "load_folder", Fields: []Requirement{
		{FieldPath, "path", tlv.TypeString, One},
	}},
	MsgLoadKey: {Name: "load_key", Fields: []Requirement{
		{FieldKey, "key", tlv.TypeStruct, One},
	}},
	MsgAnnotate: {Name: "annotate", Fields: []Requirement{
		{FieldEvent, "event", tlv.TypeStruct, One},
	}},
	MsgFolderContents: {Name: "folder_contents", Fields: []Requirement{
		{FieldKeys, "keys", tlv.TypeStruct, Many},
	}},
	MsgInitialLoad: {Name: "initial_load", Fields: []Requirement{
		{FieldKey, "key", tlv.TypeStruct, One},
		{FieldImage, "image", tlv.TypeStruct, One},
		{FieldAnnotations, "annotations", tlv.TypeStruct, One},
	}},
	MsgServerUpdated: {Name: "server_updated", Fields: []Requirement{
		{FieldUpdated, "annotations", tlv.TypeStruct, One},
	}},
}

// Message returns the schema for a message kind.
func Message(kind uint16) (Schema, bool) {
	s, ok := messages[kind]
	return s, ok
}

// Body returns the schema for an annotation event body.
func Body(tag uint8) (Schema, bool) {
	s, ok := bodies[tag]
	return s, ok
}

// IsServerKind reports whether kind travels server to client.
func IsServerKind(kind uint16) bool {
	return kind&0x0100 != 0
}

// Validate enforces the exact field set of s: every field must be known,
// carry the declared type, and singular fields must occur exactly once.
func Validate(s Schema, fields []tlv.Field) error {
	logs.Tracef("schema.Validate schema=%s fields=%d", s.Name, len(fields))
	seen := make(map[uint16]int, len(s.Fields))
	for _, f := range fields {
		req, ok := s.lookup(f.ID)
		if !ok {
			logs.Debugf("schema.Validate unknown field schema=%s field_id=%d", s.Name, f.ID)
			return ValidationError{Schema: s.Name, FieldID: f.ID, Reason: "unknown field"}
		}
		if f.Type != req.Type {
			logs.Debugf(
				"schema.Validate type mismatch schema=%s field_id=%d got=%s want=%s",
				s.Name,
				f.ID,
				tlv.TypeName(f.Type),
				tlv.TypeName(req.Type),
			)
			return ValidationError{Schema: s.Name, FieldID: f.ID, Reason: "type mismatch"}
		}
		seen[f.ID]++
		if req.Card == One && seen[f.ID] > 1 {
			logs.Debugf("schema.Validate duplicate field schema=%s field_id=%d", s.Name, f.ID)
			return ValidationError{Schema: s.Name, FieldID: f.ID, Reason: "duplicate field"}
		}
	}
	for _, req := range s.Fields {
		if req.Card == One && seen[req.ID] == 0 {
			logs.Debugf("schema.Validate missing field schema=%s field_id=%d", s.Name, req.ID)
			return ValidationError{Schema: s.Name, FieldID: req.ID, Reason: "missing required field"}
		}
	}
	return nil
}

// FieldName returns the declared name of id within s, or its number.
func (s Schema) FieldName(id uint16) string {
	if req, ok := s.lookup(id); ok {
		return req.Name
	}
	return fmt.Sprintf("#%d", id)
}
