package ingest

import (
	"github.com/google/uuid"

	"github.com/clinicore/imagingest/internal/dicomfile"
	"github.com/clinicore/imagingest/internal/registry"
)

// Session carries all state accumulated by one pass through the wizard:
// the selected files, the extracted and edited tag sets, the chosen patient
// candidate and the upload tasks with their outcome.
type Session struct {
	ID    uuid.UUID
	Files []*dicomfile.ImagingFile

	// Preview holds the tags extracted from the first valid file. Resolved
	// is Preview with the operator's override applied and is what matching
	// and upload act on.
	Preview  *dicomfile.TagSet
	Override dicomfile.Override
	Resolved *dicomfile.TagSet

	// Divergent counts valid files whose StudyInstanceUID differs from the
	// preview file's. They still upload, but the operator is warned.
	Divergent int

	Candidate *registry.Candidate
	OrderID   string

	Tasks   []*UploadTask
	Summary *Summary

	step Step
}

// NewSession returns an empty session positioned at file selection.
func NewSession() *Session {
	return &Session{ID: uuid.New(), step: StepSelectFiles}
}

// Step reports the wizard step the session currently sits at.
func (s *Session) Step() Step { return s.step }

// ValidFiles returns the files that passed validation, in selection order.
func (s *Session) ValidFiles() []*dicomfile.ImagingFile {
	var out []*dicomfile.ImagingFile
	for _, f := range s.Files {
		if f.Validity == dicomfile.Valid {
			out = append(out, f)
		}
	}
	return out
}

// InvalidFiles returns the files rejected during validation.
func (s *Session) InvalidFiles() []*dicomfile.ImagingFile {
	var out []*dicomfile.ImagingFile
	for _, f := range s.Files {
		if f.Validity == dicomfile.Invalid {
			out = append(out, f)
		}
	}
	return out
}
