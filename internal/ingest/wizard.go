package ingest

import (
	"context"
	"fmt"

	"github.com/clinicore/imagingest/internal/dicomfile"
	"github.com/clinicore/imagingest/internal/logging"
	"github.com/clinicore/imagingest/internal/registry"
)

// Step identifies a wizard step. Forward order is SelectFiles, PreviewTags,
// MatchPatient, Uploading, Complete; Cancelled is terminal from any step
// before Complete.
type Step int

const (
	StepSelectFiles Step = iota
	StepPreviewTags
	StepMatchPatient
	StepUploading
	StepComplete
	StepCancelled
)

func (s Step) String() string {
	switch s {
	case StepSelectFiles:
		return "select-files"
	case StepPreviewTags:
		return "preview-tags"
	case StepMatchPatient:
		return "match-patient"
	case StepUploading:
		return "uploading"
	case StepComplete:
		return "complete"
	case StepCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// FileInput is one candidate file handed to the wizard by the frontend.
type FileInput struct {
	Name    string
	Content []byte
}

// BatchReport summarizes a file selection round.
type BatchReport struct {
	Valid     int
	Invalid   int
	Divergent int
}

// Wizard drives an ingestion session through its steps, enforcing the
// transition guards. It is not safe for concurrent use; frontends call it
// from a single goroutine.
type Wizard struct {
	sess    *Session
	matcher *registry.Matcher
	orch    *Orchestrator

	maxFileBytes int64
	log          *logging.Logger

	cancelUpload context.CancelFunc
}

// NewWizard starts a fresh session at the file selection step.
func NewWizard(matcher *registry.Matcher, orch *Orchestrator, maxFileBytes int64, log *logging.Logger) *Wizard {
	if log == nil {
		log = logging.Nop()
	}
	return &Wizard{
		sess:         NewSession(),
		matcher:      matcher,
		orch:         orch,
		maxFileBytes: maxFileBytes,
		log:          log,
	}
}

// Session exposes the underlying session for frontends to render.
func (w *Wizard) Session() *Session { return w.sess }

// Step reports the current wizard step.
func (w *Wizard) Step() Step { return w.sess.step }

// SelectFiles validates the given files and stages them on the session,
// replacing any previous selection. Tags are extracted from the first valid
// file; remaining valid files are checked against it so the operator can be
// warned when the batch spans more than one study.
func (w *Wizard) SelectFiles(inputs []FileInput) (*BatchReport, error) {
	if w.sess.step != StepSelectFiles {
		return nil, fmt.Errorf("select files at step %s: %w", w.sess.step, ErrInvalidTransition)
	}

	sess := w.sess
	sess.Files = sess.Files[:0]
	sess.Preview = nil
	sess.Resolved = nil
	sess.Override = nil
	sess.Divergent = 0

	report := &BatchReport{}
	for _, in := range inputs {
		f := dicomfile.NewImagingFile(in.Name, in.Content)
		if err := f.Validate(w.maxFileBytes); err != nil {
			w.log.Warn("file rejected", "file", f.Name, "error", err)
			report.Invalid++
			sess.Files = append(sess.Files, f)
			continue
		}
		report.Valid++

		if sess.Preview == nil {
			ts, err := dicomfile.Extract(f.Content)
			if err != nil {
				// Parsed during validation but unreadable now; treat as
				// invalid rather than aborting the batch.
				f.Validity = dicomfile.Invalid
				f.Reason = err
				report.Valid--
				report.Invalid++
				sess.Files = append(sess.Files, f)
				continue
			}
			f.Tags = &ts
			sess.Preview = &ts
			resolved := ts
			sess.Resolved = &resolved
		} else if uid, err := studyUID(f.Content); err == nil && uid != sess.Preview.StudyInstanceUID {
			report.Divergent++
		}
		sess.Files = append(sess.Files, f)
	}
	sess.Divergent = report.Divergent
	w.log.Info("files selected",
		"session", sess.ID.String(),
		"valid", report.Valid,
		"invalid", report.Invalid,
		"divergent", report.Divergent,
	)
	return report, nil
}

// ToPreview advances to the tag preview step. At least one file must have
// validated and yielded tags.
func (w *Wizard) ToPreview() error {
	if w.sess.step != StepSelectFiles {
		return fmt.Errorf("advance to preview at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
	if w.sess.Preview == nil {
		return ErrNoValidFiles
	}
	w.sess.step = StepPreviewTags
	return nil
}

// ApplyOverride replaces the session override and recomputes the resolved
// tag set. Allowed only while previewing tags.
func (w *Wizard) ApplyOverride(ov dicomfile.Override) error {
	if w.sess.step != StepPreviewTags {
		return fmt.Errorf("apply override at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
	resolved, err := dicomfile.Apply(*w.sess.Preview, ov)
	if err != nil {
		return err
	}
	w.sess.Override = ov
	w.sess.Resolved = &resolved
	return nil
}

// ToMatch advances to patient matching. The resolved tag set must carry
// every required field.
func (w *Wizard) ToMatch() error {
	if w.sess.step != StepPreviewTags {
		return fmt.Errorf("advance to matching at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
	if missing := w.sess.Resolved.MissingRequired(); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrTagsIncomplete, missing)
	}
	w.sess.step = StepMatchPatient
	return nil
}

// FindCandidates queries the registry with the resolved patient identity.
// A registry outage surfaces as registry.ErrRegistryUnavailable and leaves
// the wizard at the matching step so the operator can retry.
func (w *Wizard) FindCandidates(ctx context.Context) ([]registry.Candidate, error) {
	if w.sess.step != StepMatchPatient {
		return nil, fmt.Errorf("find candidates at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
	ts := w.sess.Resolved
	return w.matcher.Match(ctx, ts.PatientID, ts.PatientName, ts.PatientBirthDate)
}

// SelectCandidate records the operator's patient choice.
func (w *Wizard) SelectCandidate(c registry.Candidate) error {
	if w.sess.step != StepMatchPatient {
		return fmt.Errorf("select candidate at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
	w.sess.Candidate = &c
	return nil
}

// SelectManual records a manually chosen patient, bypassing the matcher.
func (w *Wizard) SelectManual(p registry.Patient) error {
	if w.sess.step != StepMatchPatient {
		return fmt.Errorf("select manual at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
	c := registry.ManualCandidate(p)
	w.sess.Candidate = &c
	return nil
}

// StartUpload moves to the uploading step and starts the orchestrator run.
// The returned channel delivers progress and, last, the run summary.
func (w *Wizard) StartUpload(ctx context.Context) (<-chan ProgressEvent, error) {
	if w.sess.step != StepMatchPatient {
		return nil, fmt.Errorf("start upload at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
	if w.sess.Candidate == nil {
		return nil, ErrNoPatientSelected
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancelUpload = cancel
	w.sess.step = StepUploading
	return w.orch.Run(runCtx, w.sess), nil
}

// Finish transitions from uploading to complete once the run summary has
// arrived.
func (w *Wizard) Finish() error {
	if w.sess.step != StepUploading {
		return fmt.Errorf("finish at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
	if w.sess.Summary == nil {
		return ErrUploadRunning
	}
	if w.cancelUpload != nil {
		w.cancelUpload()
		w.cancelUpload = nil
	}
	if w.sess.Summary.Cancelled {
		w.sess.step = StepCancelled
	} else {
		w.sess.step = StepComplete
	}
	return nil
}

// Back navigates one step backwards, discarding the state the abandoned
// step produced. Matching discards the selected candidate; tag preview
// discards the extracted tags and override, forcing re-validation on the
// next selection.
func (w *Wizard) Back() error {
	switch w.sess.step {
	case StepMatchPatient:
		w.sess.Candidate = nil
		w.sess.step = StepPreviewTags
		return nil
	case StepPreviewTags:
		w.sess.Preview = nil
		w.sess.Resolved = nil
		w.sess.Override = nil
		w.sess.Files = nil
		w.sess.Divergent = 0
		w.sess.step = StepSelectFiles
		return nil
	default:
		return fmt.Errorf("back at step %s: %w", w.sess.step, ErrInvalidTransition)
	}
}

// Cancel abandons the session. Cancelling while an upload runs requires
// confirmation and stops the orchestrator between files; already completed
// uploads stay in the archive. A completed session cannot be cancelled.
func (w *Wizard) Cancel(confirmed bool) error {
	switch w.sess.step {
	case StepComplete, StepCancelled:
		return fmt.Errorf("cancel at step %s: %w", w.sess.step, ErrInvalidTransition)
	case StepUploading:
		if !confirmed {
			return ErrConfirmRequired
		}
		if w.cancelUpload != nil {
			w.cancelUpload()
			w.cancelUpload = nil
		}
		w.sess.step = StepCancelled
		return nil
	default:
		w.sess.step = StepCancelled
		return nil
	}
}

// studyUID reads only the StudyInstanceUID from a validated file.
func studyUID(content []byte) (string, error) {
	ts, err := dicomfile.Extract(content)
	if err != nil {
		return "", err
	}
	return ts.StudyInstanceUID, nil
}

// WaitSummary drains an event stream until the summary event, invoking
// onEvent (when non-nil) for every progress event. Headless frontends use
// it to run a session to completion.
func WaitSummary(events <-chan ProgressEvent, onEvent func(ProgressEvent)) *Summary {
	var sum *Summary
	for ev := range events {
		if ev.Summary != nil {
			sum = ev.Summary
			continue
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
	return sum
}
