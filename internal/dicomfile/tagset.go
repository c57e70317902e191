package dicomfile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// TagSet is the structured metadata extracted from one DICOM file. Optional
// fields that are absent from the file are left empty.
type TagSet struct {
	PatientID          string
	PatientName        string
	PatientBirthDate   string
	PatientSex         string
	StudyInstanceUID   string
	StudyDate          string
	StudyTime          string
	StudyDescription   string
	SeriesInstanceUID  string
	Modality           string
	SOPInstanceUID     string
	SOPClassUID        string
	AccessionNumber    string
	ReferringPhysician string
	InstitutionName    string
	TransferSyntaxUID  string
}

// Field names an editable TagSet field.
type Field string

// Editable fields. The names match the DICOM keyword of the underlying tag.
const (
	FieldPatientID          Field = "PatientID"
	FieldPatientName        Field = "PatientName"
	FieldPatientBirthDate   Field = "PatientBirthDate"
	FieldPatientSex         Field = "PatientSex"
	FieldStudyDate          Field = "StudyDate"
	FieldStudyTime          Field = "StudyTime"
	FieldStudyDescription   Field = "StudyDescription"
	FieldAccessionNumber    Field = "AccessionNumber"
	FieldReferringPhysician Field = "ReferringPhysicianName"
	FieldInstitutionName    Field = "InstitutionName"
)

// fieldInfo describes one editable field: the DICOM tag it maps to and
// whether the ingestion pipeline requires it to be populated.
type fieldInfo struct {
	Tag      tag.Tag
	Required bool
}

// fieldRegistry maps editable field names to their tag info. StudyInstanceUID
// is deliberately absent: rewriting it would split the batch across studies.
var fieldRegistry = map[Field]fieldInfo{
	FieldPatientID:          {Tag: tag.PatientID, Required: true},
	FieldPatientName:        {Tag: tag.PatientName, Required: true},
	FieldPatientBirthDate:   {Tag: tag.PatientBirthDate},
	FieldPatientSex:         {Tag: tag.PatientSex},
	FieldStudyDate:          {Tag: tag.StudyDate},
	FieldStudyTime:          {Tag: tag.StudyTime},
	FieldStudyDescription:   {Tag: tag.StudyDescription},
	FieldAccessionNumber:    {Tag: tag.AccessionNumber, Required: true},
	FieldReferringPhysician: {Tag: tag.ReferringPhysicianName},
	FieldInstitutionName:    {Tag: tag.InstitutionName},
}

// FieldByName returns the canonical Field for a (case-insensitive) name.
// Unknown names fail with a suggestion for the closest editable field.
func FieldByName(name string) (Field, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for f := range fieldRegistry {
		if strings.ToLower(string(f)) == normalized {
			return f, nil
		}
	}
	if suggestion := findClosestField(normalized); suggestion != "" {
		return "", fmt.Errorf("%w: %q, did you mean %q?", ErrUnknownField, name, suggestion)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// EditableFields returns the editable field names in stable order.
func EditableFields() []Field {
	fields := make([]Field, 0, len(fieldRegistry))
	for f := range fieldRegistry {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// requiredFields are the tags the pipeline cannot upload without.
// StudyInstanceUID is required but not operator-editable.
var requiredFields = []struct {
	Name string
	Get  func(TagSet) string
}{
	{"PatientID", func(t TagSet) string { return t.PatientID }},
	{"PatientName", func(t TagSet) string { return t.PatientName }},
	{"StudyInstanceUID", func(t TagSet) string { return t.StudyInstanceUID }},
	{"AccessionNumber", func(t TagSet) string { return t.AccessionNumber }},
}

// MissingRequired returns the names of required fields that are empty.
func (t TagSet) MissingRequired() []string {
	var missing []string
	for _, rf := range requiredFields {
		if strings.TrimSpace(rf.Get(t)) == "" {
			missing = append(missing, rf.Name)
		}
	}
	return missing
}

// Complete reports whether all required fields are populated.
func (t TagSet) Complete() bool {
	return len(t.MissingRequired()) == 0
}

// Value returns the current value of an editable field.
func (t TagSet) Value(f Field) string {
	return t.get(f)
}

// get returns the TagSet value for an editable field.
func (t TagSet) get(f Field) string {
	switch f {
	case FieldPatientID:
		return t.PatientID
	case FieldPatientName:
		return t.PatientName
	case FieldPatientBirthDate:
		return t.PatientBirthDate
	case FieldPatientSex:
		return t.PatientSex
	case FieldStudyDate:
		return t.StudyDate
	case FieldStudyTime:
		return t.StudyTime
	case FieldStudyDescription:
		return t.StudyDescription
	case FieldAccessionNumber:
		return t.AccessionNumber
	case FieldReferringPhysician:
		return t.ReferringPhysician
	case FieldInstitutionName:
		return t.InstitutionName
	default:
		return ""
	}
}

// set writes the TagSet value for an editable field.
func (t *TagSet) set(f Field, v string) {
	switch f {
	case FieldPatientID:
		t.PatientID = v
	case FieldPatientName:
		t.PatientName = v
	case FieldPatientBirthDate:
		t.PatientBirthDate = v
	case FieldPatientSex:
		t.PatientSex = v
	case FieldStudyDate:
		t.StudyDate = v
	case FieldStudyTime:
		t.StudyTime = v
	case FieldStudyDescription:
		t.StudyDescription = v
	case FieldAccessionNumber:
		t.AccessionNumber = v
	case FieldReferringPhysician:
		t.ReferringPhysician = v
	case FieldInstitutionName:
		t.InstitutionName = v
	}
}
