package dicomfile

import (
	"errors"
	"testing"

	"github.com/clinicore/imagingest/internal/dicomtest"
)

func TestExtract_PopulatesTagSet(t *testing.T) {
	study := dicomtest.DefaultStudy()
	content := dicomtest.MustSynthesize(study)

	ts, err := Extract(content)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"PatientID", ts.PatientID, study.PatientID},
		{"PatientName", ts.PatientName, study.PatientName},
		{"PatientBirthDate", ts.PatientBirthDate, study.PatientBirthDate},
		{"PatientSex", ts.PatientSex, study.PatientSex},
		{"StudyInstanceUID", ts.StudyInstanceUID, study.StudyInstanceUID},
		{"SeriesInstanceUID", ts.SeriesInstanceUID, study.SeriesUID},
		{"SOPInstanceUID", ts.SOPInstanceUID, study.SOPInstanceUID},
		{"AccessionNumber", ts.AccessionNumber, study.AccessionNumber},
		{"Modality", ts.Modality, study.Modality},
		{"StudyDate", ts.StudyDate, study.StudyDate},
		{"StudyDescription", ts.StudyDescription, study.StudyDescription},
		{"InstitutionName", ts.InstitutionName, study.Institution},
		{"ReferringPhysicianName", ts.ReferringPhysician, study.Referring},
		{"TransferSyntaxUID", ts.TransferSyntaxUID, "1.2.840.10008.1.2.1"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}

	if !ts.Complete() {
		t.Errorf("TagSet with all required fields should be complete, missing: %v", ts.MissingRequired())
	}
}

func TestExtract_IncompleteWhenRequiredTagAbsent(t *testing.T) {
	study := dicomtest.DefaultStudy()
	study.AccessionNumber = ""
	study.PatientID = ""
	content := dicomtest.MustSynthesize(study)

	ts, err := Extract(content)
	if err != nil {
		t.Fatalf("Extract should succeed structurally, got: %v", err)
	}
	if ts.Complete() {
		t.Fatal("TagSet missing PatientID and AccessionNumber should be incomplete")
	}

	missing := ts.MissingRequired()
	want := map[string]bool{"PatientID": true, "AccessionNumber": true}
	if len(missing) != 2 {
		t.Fatalf("MissingRequired = %v, want exactly PatientID and AccessionNumber", missing)
	}
	for _, m := range missing {
		if !want[m] {
			t.Errorf("unexpected missing field %q", m)
		}
	}
}

func TestExtract_UnreadableContent(t *testing.T) {
	_, err := Extract([]byte("not a dicom file"))
	if !errors.Is(err, ErrUnreadableContent) {
		t.Fatalf("Extract = %v, want ErrUnreadableContent", err)
	}
}
