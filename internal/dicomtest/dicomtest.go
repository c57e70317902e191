// Package dicomtest synthesizes small DICOM payloads for tests. The element
// layout follows what clinic scanners emit: file meta group, patient/study
// identity tags, and a single native frame of pixel data.
package dicomtest

import (
	"bytes"
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Study holds the identity tags stamped into a synthesized file.
type Study struct {
	PatientID        string
	PatientName      string
	PatientBirthDate string
	PatientSex       string
	StudyInstanceUID string
	SeriesUID        string
	SOPInstanceUID   string
	AccessionNumber  string
	Modality         string
	StudyDate        string
	StudyDescription string
	Institution      string
	Referring        string
}

// DefaultStudy returns a fully-populated study identity.
func DefaultStudy() Study {
	return Study{
		PatientID:        "MRN-1001",
		PatientName:      "DOE^JANE",
		PatientBirthDate: "19800101",
		PatientSex:       "F",
		StudyInstanceUID: "1.2.826.0.1.3680043.8.498.1",
		SeriesUID:        "1.2.826.0.1.3680043.8.498.1.1",
		SOPInstanceUID:   "1.2.826.0.1.3680043.8.498.1.1.1",
		AccessionNumber:  "ACC-2001",
		Modality:         "MR",
		StudyDate:        "20240105",
		StudyDescription: "BRAIN MRI",
		Institution:      "Clinicore Imaging",
		Referring:        "HOUSE^GREGORY",
	}
}

const (
	rows = 4
	cols = 4
)

// Synthesize builds a valid explicit-VR little-endian DICOM file containing
// the study identity and a 4x4 16-bit native frame.
func Synthesize(s Study) ([]byte, error) {
	nativeFrame := frame.NewNativeFrame[uint16](16, rows, cols, rows*cols, 1)
	for i := range nativeFrame.RawData {
		nativeFrame.RawData[i] = uint16(i * 257)
	}
	pixelDataInfo := dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   nativeFrame,
			},
		},
	}

	elements := []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{s.SOPInstanceUID}),
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.4"}),
		mustNewElement(tag.SOPInstanceUID, []string{s.SOPInstanceUID}),
		mustNewElement(tag.StudyInstanceUID, []string{s.StudyInstanceUID}),
		mustNewElement(tag.SeriesInstanceUID, []string{s.SeriesUID}),
		mustNewElement(tag.Modality, []string{s.Modality}),
		mustNewElement(tag.StudyDate, []string{s.StudyDate}),
		mustNewElement(tag.StudyDescription, []string{s.StudyDescription}),
		mustNewElement(tag.AccessionNumber, []string{s.AccessionNumber}),
		mustNewElement(tag.ReferringPhysicianName, []string{s.Referring}),
		mustNewElement(tag.InstitutionName, []string{s.Institution}),
		mustNewElement(tag.PatientName, []string{s.PatientName}),
		mustNewElement(tag.PatientID, []string{s.PatientID}),
		mustNewElement(tag.PatientBirthDate, []string{s.PatientBirthDate}),
		mustNewElement(tag.PatientSex, []string{s.PatientSex}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(tag.Rows, []int{rows}),
		mustNewElement(tag.Columns, []int{cols}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{16}),
		mustNewElement(tag.HighBit, []int{15}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.PixelData, pixelDataInfo),
	}

	var buf bytes.Buffer
	if err := dicom.Write(&buf, dicom.Dataset{Elements: elements}); err != nil {
		return nil, fmt.Errorf("write synthetic data set: %w", err)
	}
	return buf.Bytes(), nil
}

// MustSynthesize is Synthesize for test setup paths that cannot fail.
func MustSynthesize(s Study) []byte {
	b, err := Synthesize(s)
	if err != nil {
		panic(err)
	}
	return b
}

func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}
