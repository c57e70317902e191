package dicomfile

import "errors"

// Sentinel errors for file validation and tag editing.
var (
	// ErrSizeExceeded is returned when a file is larger than the configured maximum.
	ErrSizeExceeded = errors.New("file size exceeds configured maximum")
	// ErrMalformedHeader is returned when the DICM signature is absent.
	ErrMalformedHeader = errors.New("missing DICM signature")
	// ErrUnreadableContent is returned when the data set cannot be parsed.
	ErrUnreadableContent = errors.New("unreadable DICOM content")
	// ErrRequiredFieldRemoved is returned when an override would clear a required tag.
	ErrRequiredFieldRemoved = errors.New("override removes required tag")
	// ErrUnknownField is returned when an override names a tag that is not editable.
	ErrUnknownField = errors.New("unknown tag field")
	// ErrUnsupportedEncoding is returned when the transfer syntax cannot be safely rewritten.
	ErrUnsupportedEncoding = errors.New("transfer syntax cannot be rewritten")
)
