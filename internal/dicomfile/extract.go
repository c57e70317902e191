package dicomfile

import (
	"bytes"
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Extract parses the metadata block of a validated DICOM file into a TagSet.
// Absent optional tags are left empty. Extraction succeeds structurally even
// when required tags are missing; callers check TagSet.Complete.
func Extract(content []byte) (TagSet, error) {
	ds, err := dicom.Parse(bytes.NewReader(content), int64(len(content)), nil, dicom.SkipPixelData())
	if err != nil {
		return TagSet{}, fmt.Errorf("%w: %v", ErrUnreadableContent, err)
	}

	return TagSet{
		PatientID:          elementString(ds, tag.PatientID),
		PatientName:        elementString(ds, tag.PatientName),
		PatientBirthDate:   elementString(ds, tag.PatientBirthDate),
		PatientSex:         elementString(ds, tag.PatientSex),
		StudyInstanceUID:   elementString(ds, tag.StudyInstanceUID),
		StudyDate:          elementString(ds, tag.StudyDate),
		StudyTime:          elementString(ds, tag.StudyTime),
		StudyDescription:   elementString(ds, tag.StudyDescription),
		SeriesInstanceUID:  elementString(ds, tag.SeriesInstanceUID),
		Modality:           elementString(ds, tag.Modality),
		SOPInstanceUID:     elementString(ds, tag.SOPInstanceUID),
		SOPClassUID:        elementString(ds, tag.SOPClassUID),
		AccessionNumber:    elementString(ds, tag.AccessionNumber),
		ReferringPhysician: elementString(ds, tag.ReferringPhysicianName),
		InstitutionName:    elementString(ds, tag.InstitutionName),
		TransferSyntaxUID:  elementString(ds, tag.TransferSyntaxUID),
	}, nil
}

// elementString returns the first string value of a tag, or "" when the tag
// is absent or holds a non-string value.
func elementString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return ""
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case string:
		return v
	}
	return ""
}
