package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"github.com/clinicore/imagingest/internal/archive"
	"github.com/clinicore/imagingest/internal/dicomfile"
	"github.com/clinicore/imagingest/internal/dicomtest"
	"github.com/clinicore/imagingest/internal/ingest"
	"github.com/clinicore/imagingest/internal/registry"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// fakeArchive scripts the archive's store endpoint and records payloads.
// An optional gate blocks each store call so a scenario can cancel while a
// transfer is in flight.
type fakeArchive struct {
	mu       sync.Mutex
	payloads [][]byte
	rejectAt int // 1-based call number to reject, 0 for never
	gate     chan struct{}
	started  chan struct{}
}

func (a *fakeArchive) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/instances" {
			http.NotFound(w, r)
			return
		}
		if a.started != nil {
			a.started <- struct{}{}
		}
		if a.gate != nil {
			<-a.gate
		}

		body, _ := io.ReadAll(r.Body)
		a.mu.Lock()
		a.payloads = append(a.payloads, body)
		call := len(a.payloads)
		reject := a.rejectAt == call
		a.mu.Unlock()

		if reject {
			http.Error(w, "bad instance", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"ID":           fmt.Sprintf("inst-%d", call),
			"ParentSeries": "series-e2e",
			"ParentStudy":  "study-e2e",
			"Status":       "Success",
		})
	})
}

func (a *fakeArchive) stored() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]byte(nil), a.payloads...)
}

// fakeRegistry serves the patient search endpoint with a toggleable outage.
type fakeRegistry struct {
	mu       sync.Mutex
	patients []registry.Patient
	down     bool
}

func (r *fakeRegistry) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		down := r.down
		patients := r.patients
		r.mu.Unlock()
		if down {
			http.Error(w, "registry offline", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"patients": patients,
			"total":    len(patients),
		})
	})
}

type testContext struct {
	archiveFake  *fakeArchive
	registryFake *fakeRegistry
	archiveSrv   *httptest.Server
	registrySrv  *httptest.Server

	core    *ingest.Wizard
	summary *ingest.Summary

	lookupErr  error
	candidates []registry.Candidate
}

func (tc *testContext) newCore() {
	archiveClient := archive.NewClient(tc.archiveSrv.URL, "clinic", "secret", 10*time.Second, nil)
	matcher := registry.NewMatcher(registry.NewClient(tc.registrySrv.URL, "tok", 10*time.Second, nil))
	orch := ingest.NewOrchestrator(archiveClient, 10*time.Second, nil)
	tc.core = ingest.NewWizard(matcher, orch, 0, nil)
}

func InitializeScenario(sc *godog.ScenarioContext) {
	tc := &testContext{}

	sc.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.archiveFake = &fakeArchive{}
		tc.registryFake = &fakeRegistry{}
		tc.archiveSrv = httptest.NewServer(tc.archiveFake.handler())
		tc.registrySrv = httptest.NewServer(tc.registryFake.handler())
		return ctx, nil
	})
	sc.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		tc.archiveSrv.Close()
		tc.registrySrv.Close()
		return ctx, nil
	})

	sc.Step(`^the archive is available$`, tc.archiveIsAvailable)
	sc.Step(`^the registry knows patient "([^"]*)" named "([^"]*), ([^"]*)" born "([^"]*)"$`, tc.registryKnowsPatient)
	sc.Step(`^the registry is down$`, tc.registryIsDown)
	sc.Step(`^the registry comes back$`, tc.registryComesBack)
	sc.Step(`^a batch of (\d+) valid files? and (\d+) corrupt files?$`, tc.aBatchWithCorrupt)
	sc.Step(`^a batch of (\d+) valid files?$`, tc.aBatch)
	sc.Step(`^the archive rejects upload number (\d+)$`, tc.archiveRejectsUpload)
	sc.Step(`^the operator overrides "([^"]*)" with "([^"]*)"$`, tc.operatorOverrides)
	sc.Step(`^I run the ingestion session to completion$`, tc.runToCompletion)
	sc.Step(`^I cancel the session after the first upload$`, tc.cancelAfterFirstUpload)
	sc.Step(`^I look up patient candidates$`, tc.lookupCandidates)
	sc.Step(`^(\d+) files? should be uploaded$`, tc.filesShouldBeUploaded)
	sc.Step(`^(\d+) files? should be rejected before upload$`, tc.filesShouldBeRejected)
	sc.Step(`^(\d+) uploads? should fail$`, tc.uploadsShouldFail)
	sc.Step(`^(\d+) files? should remain pending$`, tc.filesShouldRemainPending)
	sc.Step(`^the summary should list (\d+) archive stud(?:y|ies)$`, tc.summaryShouldListStudies)
	sc.Step(`^every uploaded file should carry AccessionNumber "([^"]*)"$`, tc.uploadedFilesCarryAccession)
	sc.Step(`^the selected patient should be "([^"]*)" with an exact match$`, tc.selectedPatientShouldBe)
	sc.Step(`^the lookup should fail as retryable$`, tc.lookupShouldFailRetryable)
	sc.Step(`^the lookup should succeed$`, tc.lookupShouldSucceed)
}

func (tc *testContext) archiveIsAvailable() error {
	resp, err := http.Get(tc.archiveSrv.URL + "/instances")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (tc *testContext) registryKnowsPatient(mrn, last, first, birth string) error {
	tc.registryFake.mu.Lock()
	defer tc.registryFake.mu.Unlock()
	tc.registryFake.patients = append(tc.registryFake.patients, registry.Patient{
		ID:        uuid.New(),
		MRN:       mrn,
		FirstName: first,
		LastName:  last,
		BirthDate: birth,
		UpdatedAt: time.Now().UTC(),
	})
	return nil
}

func (tc *testContext) registryIsDown() error {
	tc.registryFake.mu.Lock()
	defer tc.registryFake.mu.Unlock()
	tc.registryFake.down = true
	return nil
}

func (tc *testContext) registryComesBack() error {
	tc.registryFake.mu.Lock()
	defer tc.registryFake.mu.Unlock()
	tc.registryFake.down = false
	return nil
}

func (tc *testContext) aBatch(valid int) error {
	return tc.aBatchWithCorrupt(valid, 0)
}

func (tc *testContext) aBatchWithCorrupt(valid, corrupt int) error {
	var inputs []ingest.FileInput
	study := dicomtest.DefaultStudy()
	for i := 0; i < valid; i++ {
		inputs = append(inputs, ingest.FileInput{
			Name:    fmt.Sprintf("scan-%02d.dcm", i+1),
			Content: dicomtest.MustSynthesize(study),
		})
	}
	for i := 0; i < corrupt; i++ {
		inputs = append(inputs, ingest.FileInput{
			Name:    fmt.Sprintf("corrupt-%02d.dcm", i+1),
			Content: []byte("this is not a dicom file"),
		})
	}

	tc.newCore()
	_, err := tc.core.SelectFiles(inputs)
	return err
}

func (tc *testContext) archiveRejectsUpload(n int) error {
	tc.archiveFake.mu.Lock()
	defer tc.archiveFake.mu.Unlock()
	tc.archiveFake.rejectAt = n
	return nil
}

func (tc *testContext) operatorOverrides(field, value string) error {
	f, err := dicomfile.FieldByName(field)
	if err != nil {
		return err
	}
	if err := tc.core.ToPreview(); err != nil {
		return err
	}
	return tc.core.ApplyOverride(dicomfile.Override{f: value})
}

// advanceToMatching walks the session forward, skipping steps an earlier
// step definition already performed.
func (tc *testContext) advanceToMatching() error {
	if tc.core.Step() == ingest.StepSelectFiles {
		if err := tc.core.ToPreview(); err != nil {
			return err
		}
	}
	if tc.core.Step() == ingest.StepPreviewTags {
		if err := tc.core.ToMatch(); err != nil {
			return err
		}
	}
	return nil
}

func (tc *testContext) selectTopCandidate(ctx context.Context) error {
	cands, err := tc.core.FindCandidates(ctx)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		return fmt.Errorf("no candidates returned")
	}
	return tc.core.SelectCandidate(cands[0])
}

func (tc *testContext) runToCompletion() error {
	ctx := context.Background()
	if err := tc.advanceToMatching(); err != nil {
		return err
	}
	if err := tc.selectTopCandidate(ctx); err != nil {
		return err
	}
	events, err := tc.core.StartUpload(ctx)
	if err != nil {
		return err
	}
	tc.summary = ingest.WaitSummary(events, nil)
	if tc.summary == nil {
		return fmt.Errorf("no summary delivered")
	}
	return tc.core.Finish()
}

func (tc *testContext) cancelAfterFirstUpload() error {
	tc.archiveFake.gate = make(chan struct{})
	tc.archiveFake.started = make(chan struct{}, 8)

	ctx := context.Background()
	if err := tc.advanceToMatching(); err != nil {
		return err
	}
	if err := tc.selectTopCandidate(ctx); err != nil {
		return err
	}
	events, err := tc.core.StartUpload(ctx)
	if err != nil {
		return err
	}

	select {
	case <-tc.archiveFake.started:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("first upload never started")
	}
	if err := tc.core.Cancel(true); err != nil {
		return err
	}
	close(tc.archiveFake.gate)

	tc.summary = ingest.WaitSummary(events, nil)
	if tc.summary == nil {
		return fmt.Errorf("no summary delivered")
	}
	return nil
}

func (tc *testContext) lookupCandidates() error {
	if err := tc.advanceToMatching(); err != nil {
		return err
	}
	tc.candidates, tc.lookupErr = tc.core.FindCandidates(context.Background())
	return nil
}

func (tc *testContext) filesShouldBeUploaded(n int) error {
	if tc.summary.Completed != n {
		return fmt.Errorf("completed = %d, want %d", tc.summary.Completed, n)
	}
	return nil
}

func (tc *testContext) filesShouldBeRejected(n int) error {
	rejected := len(tc.core.Session().InvalidFiles())
	if rejected != n {
		return fmt.Errorf("rejected = %d, want %d", rejected, n)
	}
	return nil
}

func (tc *testContext) uploadsShouldFail(n int) error {
	if tc.summary.Errored != n {
		return fmt.Errorf("errored = %d, want %d", tc.summary.Errored, n)
	}
	return nil
}

func (tc *testContext) filesShouldRemainPending(n int) error {
	if tc.summary.Remaining != n {
		return fmt.Errorf("remaining = %d, want %d", tc.summary.Remaining, n)
	}
	if !tc.summary.Cancelled {
		return fmt.Errorf("summary does not record the cancellation")
	}
	return nil
}

func (tc *testContext) summaryShouldListStudies(n int) error {
	if len(tc.summary.RemoteStudyIDs) != n {
		return fmt.Errorf("remote studies = %v, want %d", tc.summary.RemoteStudyIDs, n)
	}
	return nil
}

func (tc *testContext) uploadedFilesCarryAccession(value string) error {
	stored := tc.archiveFake.stored()
	if len(stored) == 0 {
		return fmt.Errorf("nothing was uploaded")
	}
	for i, payload := range stored {
		ts, err := dicomfile.Extract(payload)
		if err != nil {
			return fmt.Errorf("uploaded payload %d unreadable: %w", i, err)
		}
		if ts.AccessionNumber != value {
			return fmt.Errorf("payload %d accession = %q, want %q", i, ts.AccessionNumber, value)
		}
	}
	return nil
}

func (tc *testContext) selectedPatientShouldBe(mrn string) error {
	cand := tc.core.Session().Candidate
	if cand == nil {
		return fmt.Errorf("no candidate selected")
	}
	if cand.Patient.MRN != mrn {
		return fmt.Errorf("selected MRN = %q, want %q", cand.Patient.MRN, mrn)
	}
	if cand.Tier != registry.TierExact {
		return fmt.Errorf("tier = %s, want exact", cand.Tier)
	}
	return nil
}

func (tc *testContext) lookupShouldFailRetryable() error {
	if !errors.Is(tc.lookupErr, registry.ErrRegistryUnavailable) {
		return fmt.Errorf("lookup error = %v, want ErrRegistryUnavailable", tc.lookupErr)
	}
	return nil
}

func (tc *testContext) lookupShouldSucceed() error {
	if tc.lookupErr != nil {
		return fmt.Errorf("lookup failed: %v", tc.lookupErr)
	}
	if len(tc.candidates) == 0 {
		return fmt.Errorf("no candidates returned")
	}
	return nil
}
