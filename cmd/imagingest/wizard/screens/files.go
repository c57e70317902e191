package screens

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/clinicore/imagingest/cmd/imagingest/wizard/components"
	"github.com/clinicore/imagingest/internal/dicomfile"
	"github.com/clinicore/imagingest/internal/ingest"
)

// FilesScreen asks for the directory holding the files to ingest.
type FilesScreen struct {
	form      *huh.Form
	path      string
	done      bool
	cancelled bool
}

// NewFilesScreen creates the file selection screen.
func NewFilesScreen(defaultPath string) *FilesScreen {
	s := &FilesScreen{path: defaultPath}
	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("path").
				Title("Import directory").
				Description("Every regular file in the directory is validated.").
				Value(&s.path).
				Validate(func(str string) error {
					if str == "" {
						return fmt.Errorf("directory is required")
					}
					info, err := os.Stat(str)
					if err != nil {
						return fmt.Errorf("cannot read %s", str)
					}
					if !info.IsDir() {
						return fmt.Errorf("%s is not a directory", str)
					}
					return nil
				}),
		),
	).WithShowHelp(false).WithShowErrors(true)
	return s
}

// Init implements tea.Model
func (s *FilesScreen) Init() tea.Cmd {
	return s.form.Init()
}

// Update implements tea.Model
func (s *FilesScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			s.cancelled = true
			return s, tea.Quit
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}
	if s.form.State == huh.StateCompleted {
		s.done = true
	}
	return s, cmd
}

// View implements tea.Model
func (s *FilesScreen) View() string {
	title := components.TitleStyle.Render("Select files")
	return title + "\n" + s.form.View()
}

// Done returns true once a directory has been confirmed
func (s *FilesScreen) Done() bool { return s.done }

// Cancelled returns true if the user aborted
func (s *FilesScreen) Cancelled() bool { return s.cancelled }

// Path returns the confirmed directory
func (s *FilesScreen) Path() string { return s.path }

// ReviewScreen shows the validation outcome of a selected batch and asks
// whether to continue with the valid files.
type ReviewScreen struct {
	form      *huh.Form
	report    *ingest.BatchReport
	invalid   []*dicomfile.ImagingFile
	proceed   bool
	done      bool
	cancelled bool
	back      bool
}

// NewReviewScreen creates the batch review screen.
func NewReviewScreen(report *ingest.BatchReport, invalid []*dicomfile.ImagingFile) *ReviewScreen {
	s := &ReviewScreen{report: report, invalid: invalid, proceed: true}
	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("proceed").
				Title(fmt.Sprintf("Continue with %d valid file(s)?", report.Valid)).
				Value(&s.proceed),
		),
	).WithShowHelp(false)
	return s
}

// Init implements tea.Model
func (s *ReviewScreen) Init() tea.Cmd {
	return s.form.Init()
}

// Update implements tea.Model
func (s *ReviewScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			s.cancelled = true
			return s, tea.Quit
		case "esc":
			s.back = true
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}
	if s.form.State == huh.StateCompleted {
		if s.proceed {
			s.done = true
		} else {
			s.back = true
		}
	}
	return s, cmd
}

// View implements tea.Model
func (s *ReviewScreen) View() string {
	var sb strings.Builder
	sb.WriteString(components.TitleStyle.Render("Validation results"))
	sb.WriteString("\n")
	sb.WriteString(components.LabelStyle.Render("Valid: "))
	sb.WriteString(components.ValueStyle.Render(fmt.Sprintf("%d", s.report.Valid)))
	sb.WriteString("  ")
	sb.WriteString(components.LabelStyle.Render("Rejected: "))
	sb.WriteString(components.ValueStyle.Render(fmt.Sprintf("%d", s.report.Invalid)))
	sb.WriteString("\n")

	if s.report.Divergent > 0 {
		sb.WriteString(components.WarnStyle.Render(
			fmt.Sprintf("⚠ %d file(s) belong to a different study than the first one", s.report.Divergent)))
		sb.WriteString("\n")
	}

	if len(s.invalid) > 0 {
		sb.WriteString("\n")
		sb.WriteString(components.SubtitleStyle.Render("Rejected files:"))
		sb.WriteString("\n")
		for _, f := range s.invalid {
			sb.WriteString("  ")
			sb.WriteString(components.ErrorStyle.Render("✗"))
			sb.WriteString(" ")
			sb.WriteString(f.Name)
			if f.Reason != nil {
				sb.WriteString(components.LabelStyle.Render(" (" + f.Reason.Error() + ")"))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(s.form.View())
	sb.WriteString("\n")
	sb.WriteString(components.HintStyle.Render("Esc: back to selection"))
	return sb.String()
}

// Done reports the user chose to continue
func (s *ReviewScreen) Done() bool { return s.done }

// Back reports the user wants to reselect files
func (s *ReviewScreen) Back() bool { return s.back }

// Cancelled returns true if the user aborted
func (s *ReviewScreen) Cancelled() bool { return s.cancelled }
