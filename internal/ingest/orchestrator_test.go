package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clinicore/imagingest/internal/archive"
	"github.com/clinicore/imagingest/internal/dicomfile"
	"github.com/clinicore/imagingest/internal/dicomtest"
)

type storeCall struct {
	payload []byte
	opts    archive.StoreOptions
}

// stubStore scripts StoreInstance responses per call and records what was
// stored. An optional gate blocks each call until released, which lets
// cancellation tests control when a transfer is in flight.
type stubStore struct {
	mu      sync.Mutex
	calls   []storeCall
	respond func(call int) (archive.StoreResult, error)
	started chan struct{}
	release chan struct{}
}

func (s *stubStore) StoreInstance(ctx context.Context, payload []byte, opts archive.StoreOptions) (archive.StoreResult, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, storeCall{payload: payload, opts: opts})
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(n)
	}
	return archive.StoreResult{InstanceID: "inst", StudyID: "study-1", Status: "Success"}, nil
}

func (s *stubStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func validFile(t *testing.T, name string, study dicomtest.Study) *dicomfile.ImagingFile {
	t.Helper()
	f := dicomfile.NewImagingFile(name, dicomtest.MustSynthesize(study))
	if err := f.Validate(0); err != nil {
		t.Fatalf("fixture did not validate: %v", err)
	}
	return f
}

func sessionWithFiles(files ...*dicomfile.ImagingFile) *Session {
	sess := NewSession()
	sess.Files = files
	return sess
}

func drain(t *testing.T, events <-chan ProgressEvent) ([]ProgressEvent, *Summary) {
	t.Helper()
	var progress []ProgressEvent
	var sum *Summary
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if sum == nil {
					t.Fatal("channel closed without summary event")
				}
				return progress, sum
			}
			if ev.Summary != nil {
				sum = ev.Summary
				continue
			}
			progress = append(progress, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestOrchestrator_UploadsSequentially(t *testing.T) {
	study := dicomtest.DefaultStudy()
	sess := sessionWithFiles(
		validFile(t, "a.dcm", study),
		validFile(t, "b.dcm", study),
		validFile(t, "c.dcm", study),
	)
	store := &stubStore{}
	orch := NewOrchestrator(store, time.Second, nil)

	events, sum := drain(t, orch.Run(context.Background(), sess))

	if sum.Completed != 3 || sum.Errored != 0 || sum.Remaining != 0 {
		t.Fatalf("summary = %+v, want 3 completed", sum)
	}
	if store.callCount() != 3 {
		t.Fatalf("store calls = %d, want 3", store.callCount())
	}
	if len(events) != 6 {
		t.Fatalf("got %d progress events, want 6", len(events))
	}
	for i, ev := range events {
		wantIndex := i / 2
		wantState := TaskUploading
		if i%2 == 1 {
			wantState = TaskCompleted
		}
		if ev.TaskIndex != wantIndex || ev.State != wantState {
			t.Errorf("event %d = task %d %s, want task %d %s",
				i, ev.TaskIndex, ev.State, wantIndex, wantState)
		}
	}
	if len(sum.RemoteStudyIDs) != 1 || sum.RemoteStudyIDs[0] != "study-1" {
		t.Fatalf("remote study IDs = %v, want [study-1]", sum.RemoteStudyIDs)
	}
}

func TestOrchestrator_SkipsInvalidFiles(t *testing.T) {
	study := dicomtest.DefaultStudy()
	junk := dicomfile.NewImagingFile("junk.bin", []byte("not dicom at all"))
	_ = junk.Validate(0)
	sess := sessionWithFiles(validFile(t, "a.dcm", study), junk)

	store := &stubStore{}
	orch := NewOrchestrator(store, time.Second, nil)
	_, sum := drain(t, orch.Run(context.Background(), sess))

	if len(sess.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1 (invalid file must not be scheduled)", len(sess.Tasks))
	}
	if sum.Completed != 1 {
		t.Fatalf("completed = %d, want 1", sum.Completed)
	}
}

func TestOrchestrator_IsolatesFailures(t *testing.T) {
	study := dicomtest.DefaultStudy()
	sess := sessionWithFiles(
		validFile(t, "a.dcm", study),
		validFile(t, "b.dcm", study),
		validFile(t, "c.dcm", study),
	)
	rejection := &archive.TransmissionError{Status: 400, Body: "bad instance"}
	store := &stubStore{respond: func(call int) (archive.StoreResult, error) {
		if call == 1 {
			return archive.StoreResult{}, rejection
		}
		return archive.StoreResult{InstanceID: "inst", StudyID: "study-1", Status: "Success"}, nil
	}}
	orch := NewOrchestrator(store, time.Second, nil)

	_, sum := drain(t, orch.Run(context.Background(), sess))

	if sum.Completed != 2 || sum.Errored != 1 {
		t.Fatalf("summary = %+v, want 2 completed 1 errored", sum)
	}
	if sess.Tasks[1].State != TaskError {
		t.Fatalf("task 1 state = %s, want error", sess.Tasks[1].State)
	}
	var te *archive.TransmissionError
	if !errors.As(sess.Tasks[1].Err, &te) {
		t.Fatalf("task 1 err = %v, want TransmissionError", sess.Tasks[1].Err)
	}
	if sess.Tasks[2].State != TaskCompleted {
		t.Fatal("failure of task 1 must not stop task 2")
	}
}

func TestOrchestrator_CancelStopsBetweenFiles(t *testing.T) {
	study := dicomtest.DefaultStudy()
	sess := sessionWithFiles(
		validFile(t, "a.dcm", study),
		validFile(t, "b.dcm", study),
		validFile(t, "c.dcm", study),
	)
	store := &stubStore{
		started: make(chan struct{}, 3),
		release: make(chan struct{}),
	}
	orch := NewOrchestrator(store, 5*time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events := orch.Run(ctx, sess)

	// Cancel while the first file is in flight, then let it finish.
	<-store.started
	cancel()
	close(store.release)

	_, sum := drain(t, events)

	if !sum.Cancelled {
		t.Fatal("summary must report cancellation")
	}
	if sum.Completed != 1 || sum.Remaining != 2 {
		t.Fatalf("summary = %+v, want the in-flight file completed and 2 remaining", sum)
	}
	if store.callCount() != 1 {
		t.Fatalf("store calls = %d, want 1", store.callCount())
	}
	if sess.Tasks[1].State != TaskPending || sess.Tasks[2].State != TaskPending {
		t.Fatal("unstarted tasks must remain pending after cancel")
	}
}

func TestOrchestrator_AppliesOverrideBeforeTransmit(t *testing.T) {
	sess := sessionWithFiles(validFile(t, "a.dcm", dicomtest.DefaultStudy()))
	sess.Override = dicomfile.Override{dicomfile.FieldAccessionNumber: "ACC-9999"}

	store := &stubStore{}
	orch := NewOrchestrator(store, time.Second, nil)
	_, sum := drain(t, orch.Run(context.Background(), sess))

	if sum.Completed != 1 {
		t.Fatalf("completed = %d, want 1", sum.Completed)
	}
	ts, err := dicomfile.Extract(store.calls[0].payload)
	if err != nil {
		t.Fatalf("stored payload unreadable: %v", err)
	}
	if ts.AccessionNumber != "ACC-9999" {
		t.Fatalf("stored accession = %q, want override applied", ts.AccessionNumber)
	}
	if ts.PatientID != dicomtest.DefaultStudy().PatientID {
		t.Fatalf("untouched tag changed: %q", ts.PatientID)
	}
}

func TestOrchestrator_MaterializeFailureIsTaskError(t *testing.T) {
	study := dicomtest.DefaultStudy()
	broken := dicomfile.NewImagingFile("broken.dcm", dicomtest.MustSynthesize(study)[:200])
	broken.Validity = dicomfile.Valid // corrupted after validation
	sess := sessionWithFiles(broken, validFile(t, "ok.dcm", study))
	sess.Override = dicomfile.Override{dicomfile.FieldPatientID: "MRN-2"}

	store := &stubStore{}
	orch := NewOrchestrator(store, time.Second, nil)
	_, sum := drain(t, orch.Run(context.Background(), sess))

	if sum.Errored != 1 || sum.Completed != 1 {
		t.Fatalf("summary = %+v, want 1 errored 1 completed", sum)
	}
	if store.callCount() != 1 {
		t.Fatalf("store calls = %d, want only the readable file transmitted", store.callCount())
	}
}

func TestOrchestrator_ForwardsPatientLinkage(t *testing.T) {
	sess := sessionWithFiles(validFile(t, "a.dcm", dicomtest.DefaultStudy()))
	cand := manualCandidateFixture()
	sess.Candidate = &cand
	sess.OrderID = "ORD-77"

	store := &stubStore{}
	orch := NewOrchestrator(store, time.Second, nil)
	_, _ = drain(t, orch.Run(context.Background(), sess))

	got := store.calls[0].opts
	if got.PatientID != cand.Patient.ID.String() {
		t.Fatalf("patient linkage = %q, want %q", got.PatientID, cand.Patient.ID.String())
	}
	if got.OrderID != "ORD-77" {
		t.Fatalf("order linkage = %q, want ORD-77", got.OrderID)
	}
}
