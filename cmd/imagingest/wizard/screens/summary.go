package screens

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clinicore/imagingest/cmd/imagingest/wizard/components"
	"github.com/clinicore/imagingest/internal/ingest"
)

// SummaryScreen shows the outcome of a finished or cancelled run.
type SummaryScreen struct {
	summary *ingest.Summary
	tasks   []*ingest.UploadTask
	done    bool
}

// NewSummaryScreen creates the final screen from the run summary.
func NewSummaryScreen(summary *ingest.Summary, tasks []*ingest.UploadTask) *SummaryScreen {
	return &SummaryScreen{summary: summary, tasks: tasks}
}

// Init implements tea.Model
func (s *SummaryScreen) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (s *SummaryScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc", "enter", "q":
			s.done = true
			return s, tea.Quit
		}
	}
	return s, nil
}

// View implements tea.Model
func (s *SummaryScreen) View() string {
	var sb strings.Builder

	switch {
	case s.summary.Cancelled:
		sb.WriteString(components.WarnStyle.Render("⚠ Upload cancelled"))
	case s.summary.Errored > 0:
		sb.WriteString(components.WarnStyle.Render("⚠ Upload finished with errors"))
	default:
		sb.WriteString(components.SuccessStyle.Render("✓ Upload complete"))
	}
	sb.WriteString("\n\n")

	stats := []struct {
		label string
		value string
	}{
		{"Uploaded", fmt.Sprintf("%d", s.summary.Completed)},
		{"Failed", fmt.Sprintf("%d", s.summary.Errored)},
		{"Not started", fmt.Sprintf("%d", s.summary.Remaining)},
		{"Duration", fmt.Sprintf("%.1fs", s.summary.Duration.Seconds())},
	}
	for _, stat := range stats {
		sb.WriteString("  ")
		sb.WriteString(components.LabelStyle.Render(stat.label + ":"))
		sb.WriteString(" ")
		sb.WriteString(components.ValueStyle.Render(stat.value))
		sb.WriteString("\n")
	}

	if len(s.summary.RemoteStudyIDs) > 0 {
		sb.WriteString("\n")
		sb.WriteString(components.SubtitleStyle.Render("Archive studies:"))
		sb.WriteString("\n")
		for _, id := range s.summary.RemoteStudyIDs {
			sb.WriteString("  • ")
			sb.WriteString(components.ValueStyle.Render(id))
			sb.WriteString("\n")
		}
	}

	var failed []*ingest.UploadTask
	for _, t := range s.tasks {
		if t.State == ingest.TaskError {
			failed = append(failed, t)
		}
	}
	if len(failed) > 0 {
		sb.WriteString("\n")
		sb.WriteString(components.SubtitleStyle.Render("Failed files:"))
		sb.WriteString("\n")
		for _, t := range failed {
			sb.WriteString("  ")
			sb.WriteString(components.ErrorStyle.Render("✗"))
			sb.WriteString(" ")
			sb.WriteString(t.File.Name)
			if t.Err != nil {
				sb.WriteString(components.LabelStyle.Render(" (" + t.Err.Error() + ")"))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(components.HintStyle.Render("Press Enter or q to exit"))
	return sb.String()
}

// Done returns true if the user is finished
func (s *SummaryScreen) Done() bool { return s.done }
