package screens

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clinicore/imagingest/cmd/imagingest/wizard/components"
	"github.com/clinicore/imagingest/internal/ingest"
)

var (
	progressBarStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("63"))

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("63")).
				Bold(true)
)

// ProgressScreen renders the upload loop. Ctrl+C arms a confirmation
// prompt; uploads keep running until the cancel is confirmed.
type ProgressScreen struct {
	total     int
	completed int
	errored   int
	current   string
	startTime time.Time

	confirming    bool
	cancelConfirm bool
	width         int
}

// NewProgressScreen creates a progress screen for the given task count.
func NewProgressScreen(total int) *ProgressScreen {
	return &ProgressScreen{total: total, startTime: time.Now()}
}

// Init implements tea.Model
func (s *ProgressScreen) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (s *ProgressScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			s.confirming = true
		case "y", "Y":
			if s.confirming {
				s.cancelConfirm = true
			}
		case "n", "N", "esc":
			s.confirming = false
		}
	case tea.WindowSizeMsg:
		s.width = msg.Width
	}
	return s, nil
}

// Observe folds one progress event into the screen state.
func (s *ProgressScreen) Observe(ev ingest.ProgressEvent) {
	switch ev.State {
	case ingest.TaskUploading:
		s.current = ev.FileName
	case ingest.TaskCompleted:
		s.completed++
		s.current = ""
	case ingest.TaskError:
		s.errored++
		s.current = ""
	}
}

// View implements tea.Model
func (s *ProgressScreen) View() string {
	var sb strings.Builder
	sb.WriteString(components.TitleStyle.Render("Uploading to archive..."))
	sb.WriteString("\n\n")

	finished := s.completed + s.errored
	var percent float64
	if s.total > 0 {
		percent = float64(finished) / float64(s.total) * 100
	}

	barWidth := 40
	if s.width > 60 {
		barWidth = s.width / 2
		if barWidth > 60 {
			barWidth = 60
		}
	}
	sb.WriteString(s.renderBar(percent, barWidth))
	sb.WriteString(" ")
	sb.WriteString(progressPercentStyle.Render(fmt.Sprintf("%d%%", int(percent))))
	sb.WriteString("\n\n")

	sb.WriteString(components.LabelStyle.Render(fmt.Sprintf("File %d/%d", finished, s.total)))
	if s.current != "" {
		sb.WriteString(components.LabelStyle.Render(": " + s.current))
	}
	if s.errored > 0 {
		sb.WriteString("  ")
		sb.WriteString(components.ErrorStyle.Render(fmt.Sprintf("%d failed", s.errored)))
	}
	sb.WriteString("\n")

	elapsed := time.Since(s.startTime)
	sb.WriteString(components.LabelStyle.Render(fmt.Sprintf("Elapsed: %.1fs", elapsed.Seconds())))
	sb.WriteString("\n\n")

	if s.confirming {
		sb.WriteString(components.WarnStyle.Render(
			"Cancel the upload? Files already stored stay in the archive. (y/n)"))
	} else {
		sb.WriteString(components.HintStyle.Render("Press Ctrl+C to cancel"))
	}
	return sb.String()
}

func (s *ProgressScreen) renderBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	bar := progressBarStyle.Render("[" + strings.Repeat("█", filled))
	bar += progressBarEmptyStyle.Render(strings.Repeat("░", width-filled) + "]")
	return bar
}

// CancelConfirmed reports the operator confirmed aborting the upload
func (s *ProgressScreen) CancelConfirmed() bool { return s.cancelConfirm }
