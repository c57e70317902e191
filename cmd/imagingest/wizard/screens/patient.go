package screens

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/google/uuid"

	"github.com/clinicore/imagingest/cmd/imagingest/wizard/components"
	"github.com/clinicore/imagingest/internal/registry"
)

const manualEntryValue = -1

// PatientScreen presents the ranked candidates and lets the operator pick
// one or fall back to manual entry.
type PatientScreen struct {
	form       *huh.Form
	candidates []registry.Candidate
	choice     int

	manualForm *huh.Form
	manualMode bool
	manual     registry.Patient
	mrn        string
	first      string
	last       string
	birth      string

	selected  *registry.Candidate
	done      bool
	back      bool
	retry     bool
	cancelled bool

	lookupErr error
}

// NewPatientScreen creates the matching screen for the given candidates.
// A lookup error renders a retry prompt instead of the candidate list.
func NewPatientScreen(candidates []registry.Candidate, lookupErr error) *PatientScreen {
	s := &PatientScreen{candidates: candidates, lookupErr: lookupErr}
	if lookupErr != nil {
		return s
	}

	opts := make([]huh.Option[int], 0, len(candidates)+1)
	for i, c := range candidates {
		label := fmt.Sprintf("[%s] %s  MRN %s  born %s  (%.0f%%)",
			strings.ToUpper(c.Tier.String()), c.Patient.DisplayName(),
			c.Patient.MRN, c.Patient.BirthDate, c.Confidence*100)
		opts = append(opts, huh.NewOption(label, i))
	}
	opts = append(opts, huh.NewOption("Enter patient manually…", manualEntryValue))

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Key("candidate").
				Title("Select the patient this study belongs to").
				Options(opts...).
				Value(&s.choice),
		),
	).WithShowHelp(false)
	return s
}

func (s *PatientScreen) buildManualForm() {
	s.manualForm = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("mrn").
				Title("MRN").
				Value(&s.mrn).
				Validate(func(str string) error {
					if strings.TrimSpace(str) == "" {
						return fmt.Errorf("MRN is required")
					}
					return nil
				}),
			huh.NewInput().
				Key("last").
				Title("Family name").
				Value(&s.last),
			huh.NewInput().
				Key("first").
				Title("Given name").
				Value(&s.first),
			huh.NewInput().
				Key("birth").
				Title("Birth date").
				Description("Format: YYYY-MM-DD").
				Value(&s.birth).
				Validate(func(str string) error {
					if str == "" {
						return nil
					}
					if _, err := time.Parse("2006-01-02", str); err != nil {
						return fmt.Errorf("invalid date format, use YYYY-MM-DD")
					}
					return nil
				}),
		),
	).WithShowHelp(false).WithShowErrors(true)
}

// Init implements tea.Model
func (s *PatientScreen) Init() tea.Cmd {
	if s.form != nil {
		return s.form.Init()
	}
	return nil
}

// Update implements tea.Model
func (s *PatientScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			s.cancelled = true
			return s, tea.Quit
		case "esc":
			if s.manualMode {
				s.manualMode = false
				return s, s.form.Init()
			}
			s.back = true
			return s, nil
		case "r", "enter":
			if s.lookupErr != nil {
				s.retry = true
				return s, nil
			}
		}
	}

	if s.lookupErr != nil {
		return s, nil
	}

	if s.manualMode {
		form, cmd := s.manualForm.Update(msg)
		if f, ok := form.(*huh.Form); ok {
			s.manualForm = f
		}
		if s.manualForm.State == huh.StateCompleted {
			s.manual = registry.Patient{
				ID:        uuid.New(),
				MRN:       strings.TrimSpace(s.mrn),
				FirstName: strings.TrimSpace(s.first),
				LastName:  strings.TrimSpace(s.last),
				BirthDate: strings.TrimSpace(s.birth),
				UpdatedAt: time.Now().UTC(),
			}
			c := registry.ManualCandidate(s.manual)
			s.selected = &c
			s.done = true
		}
		return s, cmd
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}
	if s.form.State == huh.StateCompleted {
		if s.choice == manualEntryValue {
			s.manualMode = true
			s.buildManualForm()
			return s, s.manualForm.Init()
		}
		s.selected = &s.candidates[s.choice]
		s.done = true
	}
	return s, cmd
}

// View implements tea.Model
func (s *PatientScreen) View() string {
	var sb strings.Builder
	sb.WriteString(components.TitleStyle.Render("Match patient"))
	sb.WriteString("\n")

	if s.lookupErr != nil {
		sb.WriteString(components.ErrorStyle.Render("✗ Patient registry unreachable"))
		sb.WriteString("\n  ")
		sb.WriteString(components.LabelStyle.Render(s.lookupErr.Error()))
		sb.WriteString("\n\n")
		sb.WriteString(components.HintStyle.Render("Enter/r: retry | Esc: back | Ctrl+C: cancel"))
		return sb.String()
	}

	if s.manualMode {
		sb.WriteString(components.SubtitleStyle.Render("Manual patient entry"))
		sb.WriteString("\n")
		sb.WriteString(s.manualForm.View())
		sb.WriteString("\n")
		sb.WriteString(components.HintStyle.Render("Esc: back to candidates"))
		return sb.String()
	}

	if len(s.candidates) == 0 {
		sb.WriteString(components.WarnStyle.Render("No matching patient found in the registry."))
		sb.WriteString("\n\n")
	}
	sb.WriteString(s.form.View())
	sb.WriteString("\n")
	sb.WriteString(components.HintStyle.Render("Esc: back | Ctrl+C: cancel"))
	return sb.String()
}

// Done returns true once a patient has been chosen
func (s *PatientScreen) Done() bool { return s.done }

// Back reports the user wants to return to tag review
func (s *PatientScreen) Back() bool { return s.back }

// Retry reports the user asked to repeat a failed lookup
func (s *PatientScreen) Retry() bool { return s.retry }

// Cancelled returns true if the user aborted
func (s *PatientScreen) Cancelled() bool { return s.cancelled }

// Selected returns the chosen candidate
func (s *PatientScreen) Selected() *registry.Candidate { return s.selected }
