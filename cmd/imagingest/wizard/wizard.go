// Package wizard is the interactive terminal frontend of the ingestion
// pipeline. Each screen maps onto one step of the underlying session and
// every transition goes through the state machine's guards.
package wizard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clinicore/imagingest/cmd/imagingest/wizard/screens"
	"github.com/clinicore/imagingest/internal/ingest"
	"github.com/clinicore/imagingest/internal/registry"
)

// Phase represents the current screen of the wizard.
type Phase int

const (
	PhaseFiles Phase = iota
	PhaseReview
	PhaseTags
	PhasePatient
	PhaseProgress
	PhaseSummary
	PhaseError
)

type candidatesMsg struct {
	candidates []registry.Candidate
	err        error
}

type progressMsg ingest.ProgressEvent

type streamClosedMsg struct{}

// Wizard is the bubbletea model driving the ingestion session.
type Wizard struct {
	core *ingest.Wizard

	phase Phase

	filesScreen    *screens.FilesScreen
	reviewScreen   *screens.ReviewScreen
	tagsScreen     *screens.TagsScreen
	patientScreen  *screens.PatientScreen
	progressScreen *screens.ProgressScreen
	summaryScreen  *screens.SummaryScreen

	events <-chan ingest.ProgressEvent

	cancelled bool
	err       error
}

// NewWizard wraps the core state machine in the TUI model.
func NewWizard(core *ingest.Wizard, defaultDir string) *Wizard {
	return &Wizard{
		core:        core,
		phase:       PhaseFiles,
		filesScreen: screens.NewFilesScreen(defaultDir),
	}
}

// Init implements tea.Model.
func (w *Wizard) Init() tea.Cmd {
	return w.filesScreen.Init()
}

// Update implements tea.Model.
func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch w.phase {
	case PhaseFiles:
		return w.updateFiles(msg)
	case PhaseReview:
		return w.updateReview(msg)
	case PhaseTags:
		return w.updateTags(msg)
	case PhasePatient:
		return w.updatePatient(msg)
	case PhaseProgress:
		return w.updateProgress(msg)
	case PhaseSummary:
		return w.updateSummary(msg)
	case PhaseError:
		return w, tea.Quit
	}
	return w, nil
}

// View implements tea.Model.
func (w *Wizard) View() string {
	switch w.phase {
	case PhaseFiles:
		return w.filesScreen.View()
	case PhaseReview:
		return w.reviewScreen.View()
	case PhaseTags:
		return w.tagsScreen.View()
	case PhasePatient:
		return w.patientScreen.View()
	case PhaseProgress:
		return w.progressScreen.View()
	case PhaseSummary:
		return w.summaryScreen.View()
	case PhaseError:
		return fmt.Sprintf("Error: %v\n", w.err)
	}
	return ""
}

func (w *Wizard) fail(err error) (tea.Model, tea.Cmd) {
	w.err = err
	w.phase = PhaseError
	return w, tea.Quit
}

func (w *Wizard) updateFiles(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := w.filesScreen.Update(msg)
	if s, ok := model.(*screens.FilesScreen); ok {
		w.filesScreen = s
	}

	if w.filesScreen.Cancelled() {
		w.cancelled = true
		_ = w.core.Cancel(true)
		return w, tea.Quit
	}

	if w.filesScreen.Done() {
		inputs, err := readDirectory(w.filesScreen.Path())
		if err != nil {
			return w.fail(err)
		}
		report, err := w.core.SelectFiles(inputs)
		if err != nil {
			return w.fail(err)
		}
		w.phase = PhaseReview
		w.reviewScreen = screens.NewReviewScreen(report, w.core.Session().InvalidFiles())
		return w, w.reviewScreen.Init()
	}
	return w, cmd
}

func (w *Wizard) updateReview(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := w.reviewScreen.Update(msg)
	if s, ok := model.(*screens.ReviewScreen); ok {
		w.reviewScreen = s
	}

	if w.reviewScreen.Cancelled() {
		w.cancelled = true
		_ = w.core.Cancel(true)
		return w, tea.Quit
	}
	if w.reviewScreen.Back() {
		w.phase = PhaseFiles
		w.filesScreen = screens.NewFilesScreen(w.filesScreen.Path())
		return w, w.filesScreen.Init()
	}
	if w.reviewScreen.Done() {
		if err := w.core.ToPreview(); err != nil {
			return w.fail(err)
		}
		w.phase = PhaseTags
		w.tagsScreen = screens.NewTagsScreen(*w.core.Session().Preview)
		return w, w.tagsScreen.Init()
	}
	return w, cmd
}

func (w *Wizard) updateTags(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := w.tagsScreen.Update(msg)
	if s, ok := model.(*screens.TagsScreen); ok {
		w.tagsScreen = s
	}

	if w.tagsScreen.Cancelled() {
		w.cancelled = true
		_ = w.core.Cancel(true)
		return w, tea.Quit
	}
	if w.tagsScreen.Back() {
		if err := w.core.Back(); err != nil {
			return w.fail(err)
		}
		w.phase = PhaseFiles
		w.filesScreen = screens.NewFilesScreen(w.filesScreen.Path())
		return w, w.filesScreen.Init()
	}
	if w.tagsScreen.Done() {
		if err := w.core.ApplyOverride(w.tagsScreen.Override()); err != nil {
			return w.fail(err)
		}
		if err := w.core.ToMatch(); err != nil {
			return w.fail(err)
		}
		w.phase = PhasePatient
		return w, w.lookupCandidates()
	}
	return w, cmd
}

func (w *Wizard) lookupCandidates() tea.Cmd {
	core := w.core
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), registry.DefaultLookupTimeout)
		defer cancel()
		cands, err := core.FindCandidates(ctx)
		return candidatesMsg{candidates: cands, err: err}
	}
}

func (w *Wizard) updatePatient(msg tea.Msg) (tea.Model, tea.Cmd) {
	if cm, ok := msg.(candidatesMsg); ok {
		w.patientScreen = screens.NewPatientScreen(cm.candidates, cm.err)
		return w, w.patientScreen.Init()
	}
	if w.patientScreen == nil {
		return w, nil
	}

	model, cmd := w.patientScreen.Update(msg)
	if s, ok := model.(*screens.PatientScreen); ok {
		w.patientScreen = s
	}

	if w.patientScreen.Cancelled() {
		w.cancelled = true
		_ = w.core.Cancel(true)
		return w, tea.Quit
	}
	if w.patientScreen.Retry() {
		w.patientScreen = nil
		return w, w.lookupCandidates()
	}
	if w.patientScreen.Back() {
		if err := w.core.Back(); err != nil {
			return w.fail(err)
		}
		w.phase = PhaseTags
		w.tagsScreen = screens.NewTagsScreen(*w.core.Session().Preview)
		return w, w.tagsScreen.Init()
	}
	if w.patientScreen.Done() {
		if err := w.core.SelectCandidate(*w.patientScreen.Selected()); err != nil {
			return w.fail(err)
		}
		events, err := w.core.StartUpload(context.Background())
		if err != nil {
			return w.fail(err)
		}
		w.events = events
		w.phase = PhaseProgress
		w.progressScreen = screens.NewProgressScreen(len(w.core.Session().ValidFiles()))
		return w, waitForEvent(events)
	}
	return w, cmd
}

func waitForEvent(ch <-chan ingest.ProgressEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return progressMsg(ev)
	}
}

func (w *Wizard) updateProgress(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		if msg.Summary == nil {
			w.progressScreen.Observe(ingest.ProgressEvent(msg))
		}
		return w, waitForEvent(w.events)

	case streamClosedMsg:
		// A confirmed cancel has already moved the session off the
		// uploading step; Finish applies only to runs that ran out.
		if w.core.Step() == ingest.StepUploading {
			if err := w.core.Finish(); err != nil {
				return w.fail(err)
			}
		}
		sess := w.core.Session()
		w.phase = PhaseSummary
		w.summaryScreen = screens.NewSummaryScreen(sess.Summary, sess.Tasks)
		return w, w.summaryScreen.Init()
	}

	model, cmd := w.progressScreen.Update(msg)
	if s, ok := model.(*screens.ProgressScreen); ok {
		w.progressScreen = s
	}
	if w.progressScreen.CancelConfirmed() {
		// Stop scheduling further files; the stream still closes normally
		// and delivers the summary.
		_ = w.core.Cancel(true)
	}
	return w, cmd
}

func (w *Wizard) updateSummary(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := w.summaryScreen.Update(msg)
	if s, ok := model.(*screens.SummaryScreen); ok {
		w.summaryScreen = s
	}
	if w.summaryScreen.Done() {
		return w, tea.Quit
	}
	return w, cmd
}

// readDirectory loads every regular file of dir, in name order.
func readDirectory(dir string) ([]ingest.FileInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var inputs []ingest.FileInput
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		inputs = append(inputs, ingest.FileInput{Name: e.Name(), Content: content})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no files in %s", dir)
	}
	return inputs, nil
}

// Run starts the interactive wizard on the given session core.
func Run(core *ingest.Wizard, defaultDir string) error {
	w := NewWizard(core, defaultDir)
	p := tea.NewProgram(w, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("running wizard: %w", err)
	}

	if final, ok := finalModel.(*Wizard); ok {
		if final.cancelled {
			return nil
		}
		if final.err != nil {
			return final.err
		}
	}
	return nil
}
