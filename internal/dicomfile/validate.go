package dicomfile

import (
	"bytes"
	"fmt"

	"github.com/suyashkumar/dicom"
)

// DICOM part 10 file layout: 128-byte preamble followed by "DICM".
const preambleLength = 128

var dicmSignature = []byte("DICM")

// Validate inspects raw file content and reports whether it is a structurally
// valid DICOM file. Validation is pure: it never modifies the content.
//
// maxBytes bounds the accepted file size; zero disables the size check.
func Validate(content []byte, maxBytes int64) error {
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrSizeExceeded, len(content), maxBytes)
	}

	if len(content) < preambleLength+len(dicmSignature) {
		return fmt.Errorf("%w: file too short (%d bytes)", ErrMalformedHeader, len(content))
	}
	if !bytes.Equal(content[preambleLength:preambleLength+len(dicmSignature)], dicmSignature) {
		return ErrMalformedHeader
	}

	// Signature is present; make sure the data set itself parses. Pixel data
	// is skipped, validation only needs the element stream to be readable.
	_, err := dicom.Parse(bytes.NewReader(content), int64(len(content)), nil, dicom.SkipPixelData())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableContent, err)
	}
	return nil
}
