package client

import "github.com/danmuck/defectctl/internal/protocol"

// View is one of Connecting, NoFolder, FolderListed, AnnotationActive or
// Failed.
type View interface {
	viewName() string
}

type Connecting struct{}

type NoFolder struct{}

type FolderListed struct {
	Listing []protocol.FaceKey
}

// AnnotationActive is the editing view. Annotations is a read replica of the
// server's set and is only ever replaced whole.
type AnnotationActive struct {
	Listing     []protocol.FaceKey
	Key         protocol.FaceKey
	Texture     Texture
	Annotations protocol.AnnotationData
}

type Failed struct {
	Err error
}

func (Connecting) viewName() string       { return "connecting" }
func (NoFolder) viewName() string         { return "no_folder" }
func (FolderListed) viewName() string     { return "folder_listed" }
func (AnnotationActive) viewName() string { return "annotation_active" }
func (Failed) viewName() string           { return "failed" }

// ViewName returns a short label for logs and prompts.
func ViewName(v View) string {
	if v == nil {
		return "nil"
	}
	return v.viewName()
}
