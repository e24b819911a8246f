package annotator

import (
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/danmuck/defectctl/internal/segment"
)

// State is one of NoFolder, FolderSelected or FaceLoaded.
type State interface {
	stateName() string
}

// NoFolder is the initial state of every connection.
type NoFolder struct{}

// FolderSelected holds the folder the operator browsed last.
type FolderSelected struct {
	Root    string
	Listing []protocol.FaceKey
}

// FaceLoaded holds the active face, its cached features and the defects drawn
// on it so far.
type FaceLoaded struct {
	Root        string
	Listing     []protocol.FaceKey
	Key         protocol.FaceKey
	Features    segment.Features
	Annotations protocol.AnnotationData
}

func (NoFolder) stateName() string       { return "no_folder" }
func (FolderSelected) stateName() string { return "folder_selected" }
func (*FaceLoaded) stateName() string    { return "face_loaded" }

// StateName returns a short label for logs.
func StateName(s State) string {
	if s == nil {
		return "nil"
	}
	return s.stateName()
}
