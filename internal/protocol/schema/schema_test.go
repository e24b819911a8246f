package schema

import (
	"testing"

	"github.com/danmuck/defectctl/internal/protocol/tlv"
	"github.com/danmuck/defectctl/internal/testutil/testlog"
)

func faceKeyFields() []tlv.Field {
	return []tlv.Field{
		tlv.String(FieldPrefix, "board-07-top"),
		tlv.Bool(FieldIsNarrow, false),
	}
}

func TestValidateFaceKey(t *testing.T) {
	testlog.Start(t)
	if err := Validate(FaceKey, faceKeyFields()); err != nil {
		t.Fatalf("validate face key: %v", err)
	}
}

func TestValidateUnknownFieldRejected(t *testing.T) {
	testlog.Start(t)
	fields := append(faceKeyFields(), tlv.Bytes(99, []byte{0x01}))
	err := Validate(FaceKey, fields)
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if ve.FieldID != 99 || ve.Reason != "unknown field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateMissingRequiredDeterministic(t *testing.T) {
	testlog.Start(t)
	err := Validate(FaceKey, []tlv.Field{tlv.Bool(FieldIsNarrow, true)})
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if ve.FieldID != FieldPrefix || ve.Reason != "missing required field" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.String(FieldPrefix, "a"),
		tlv.U8(FieldIsNarrow, 1),
	}
	ve, ok := Validate(FaceKey, fields).(ValidationError)
	if !ok || ve.FieldID != FieldIsNarrow || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation result: %+v", ve)
	}
}

func TestValidateDuplicateSingularRejected(t *testing.T) {
	testlog.Start(t)
	fields := append(faceKeyFields(), tlv.String(FieldPrefix, "again"))
	ve, ok := Validate(FaceKey, fields).(ValidationError)
	if !ok || ve.FieldID != FieldPrefix || ve.Reason != "duplicate field" {
		t.Fatalf("unexpected validation result: %+v", ve)
	}
}

func TestValidateRepeatedAllowsZeroAndMany(t *testing.T) {
	testlog.Start(t)
	if err := Validate(Annotations, nil); err != nil {
		t.Fatalf("empty annotations: %v", err)
	}
	fields := []tlv.Field{
		tlv.Struct(FieldPolygons),
		tlv.Struct(FieldPolygons),
		tlv.Struct(FieldPolygons),
	}
	if err := Validate(Annotations, fields); err != nil {
		t.Fatalf("repeated polygons: %v", err)
	}
}

func TestMessageAndBodyLookup(t *testing.T) {
	testlog.Start(t)
	for _, kind := range []uint16{MsgLoadFolder, MsgLoadKey, MsgAnnotate, MsgFolderContents, MsgInitialLoad, MsgServerUpdated} {
		if _, ok := Message(kind); !ok {
			t.Fatalf("missing schema for kind %#x", kind)
		}
	}
	if _, ok := Message(0x0042); ok {
		t.Fatalf("unexpected schema for unknown kind")
	}
	for tag := EventClick; tag <= EventEditDefect; tag++ {
		if _, ok := Body(tag); !ok {
			t.Fatalf("missing body schema for tag %d", tag)
		}
	}
	if _, ok := Body(0); ok {
		t.Fatalf("unexpected body schema for tag 0")
	}
	if IsServerKind(MsgAnnotate) || !IsServerKind(MsgServerUpdated) {
		t.Fatalf("direction classification wrong")
	}
}
