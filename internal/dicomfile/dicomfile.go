// Package dicomfile inspects, extracts and rewrites the metadata of DICOM
// files selected for ingestion. It never touches bulk pixel data: edits are
// applied by deriving a new payload from the original bytes.
package dicomfile

import "fmt"

// Validity is the tri-state validation result of a selected file.
type Validity int

const (
	// Unvalidated means the file has not been inspected yet.
	Unvalidated Validity = iota
	// Valid means the file passed structural validation.
	Valid
	// Invalid means the file was rejected; Reason holds the cause.
	Invalid
)

// String returns the string representation of a Validity.
func (v Validity) String() string {
	switch v {
	case Unvalidated:
		return "unvalidated"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ImagingFile is one user-selected DICOM artifact. Validity and Tags are set
// once during validation/extraction and are immutable afterwards; tag edits
// produce new payload bytes via Materialize, never an in-place mutation.
type ImagingFile struct {
	Name    string
	Size    int64
	Content []byte

	Validity Validity
	Reason   error // set when Validity == Invalid

	Tags *TagSet // nil until extraction succeeds
}

// NewImagingFile wraps raw selected-file content in an unvalidated ImagingFile.
func NewImagingFile(name string, content []byte) *ImagingFile {
	return &ImagingFile{
		Name:     name,
		Size:     int64(len(content)),
		Content:  content,
		Validity: Unvalidated,
	}
}

// Validate runs structural validation and records the outcome on the file.
// It is a no-op if the file was already validated.
func (f *ImagingFile) Validate(maxBytes int64) error {
	if f.Validity != Unvalidated {
		if f.Validity == Invalid {
			return f.Reason
		}
		return nil
	}
	if err := Validate(f.Content, maxBytes); err != nil {
		f.Validity = Invalid
		f.Reason = fmt.Errorf("%s: %w", f.Name, err)
		return f.Reason
	}
	f.Validity = Valid
	return nil
}
