package ingest

import (
	"fmt"

	"github.com/clinicore/imagingest/internal/dicomfile"
)

// TaskState tracks the lifecycle of one file's upload.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskUploading
	TaskCompleted
	TaskError
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskUploading:
		return "uploading"
	case TaskCompleted:
		return "completed"
	case TaskError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the task can no longer change state.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskError
}

// UploadTask is one file's journey through the upload pipeline. Tasks are
// built from valid files only and mutated exclusively by the orchestrator
// goroutine; observers read them through ProgressEvent snapshots.
type UploadTask struct {
	File          *dicomfile.ImagingFile
	State         TaskState
	UploadedBytes int64
	TotalBytes    int64
	RemoteStudyID string
	Err           error
}

func newUploadTask(f *dicomfile.ImagingFile) *UploadTask {
	return &UploadTask{File: f, State: TaskPending, TotalBytes: f.Size}
}

// advance moves the task to a new state. Progress is monotonic: bytes never
// decrease and a terminal task stays terminal.
func (t *UploadTask) advance(state TaskState, uploaded int64) {
	if t.State.Terminal() {
		return
	}
	t.State = state
	if uploaded > t.UploadedBytes {
		t.UploadedBytes = uploaded
	}
}

func (t *UploadTask) fail(err error) {
	if t.State.Terminal() {
		return
	}
	t.State = TaskError
	t.Err = err
}

func (t *UploadTask) complete(studyID string) {
	if t.State.Terminal() {
		return
	}
	t.State = TaskCompleted
	t.UploadedBytes = t.TotalBytes
	t.RemoteStudyID = studyID
}
