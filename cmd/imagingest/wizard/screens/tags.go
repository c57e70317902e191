package screens

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/clinicore/imagingest/cmd/imagingest/wizard/components"
	"github.com/clinicore/imagingest/internal/dicomfile"
)

// TagsScreen previews the extracted tags and lets the operator edit the
// rewritable ones. Values left as extracted produce no override.
type TagsScreen struct {
	form      *huh.Form
	original  map[dicomfile.Field]string
	edited    map[dicomfile.Field]*string
	done      bool
	back      bool
	cancelled bool
}

// NewTagsScreen builds an edit form prefilled from the extracted tag set.
func NewTagsScreen(preview dicomfile.TagSet) *TagsScreen {
	s := &TagsScreen{
		original: make(map[dicomfile.Field]string),
		edited:   make(map[dicomfile.Field]*string),
	}

	var inputs []huh.Field
	for _, f := range dicomfile.EditableFields() {
		v := preview.Value(f)
		s.original[f] = v
		buf := v
		s.edited[f] = &buf

		field := f
		inputs = append(inputs, huh.NewInput().
			Key(string(f)).
			Title(string(f)).
			Value(s.edited[f]).
			Validate(func(str string) error {
				probe := dicomfile.Override{field: str}
				if _, err := dicomfile.Apply(preview, probe); err != nil {
					return err
				}
				return nil
			}))
	}

	s.form = huh.NewForm(huh.NewGroup(inputs...)).
		WithShowHelp(false).
		WithShowErrors(true)
	return s
}

// Init implements tea.Model
func (s *TagsScreen) Init() tea.Cmd {
	return s.form.Init()
}

// Update implements tea.Model
func (s *TagsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
		s.done = true
	}
	return s, cmd
}

// View implements tea.Model
func (s *TagsScreen) View() string {
	var sb strings.Builder
	sb.WriteString(components.TitleStyle.Render("Review tags"))
	sb.WriteString("\n")
	sb.WriteString(components.SubtitleStyle.Render(
		fmt.Sprintf("%d editable field(s). Clearing a required field is rejected.", len(s.edited))))
	sb.WriteString("\n")
	sb.WriteString(s.form.View())
	sb.WriteString("\n")
	sb.WriteString(components.HintStyle.Render("Esc: back | Ctrl+C: cancel"))
	return sb.String()
}

// Done returns true once the form is submitted
func (s *TagsScreen) Done() bool { return s.done }

// Back reports the user wants to return to file selection
func (s *TagsScreen) Back() bool { return s.back }

// Cancelled returns true if the user aborted
func (s *TagsScreen) Cancelled() bool { return s.cancelled }

// Override returns the fields whose value differs from the extracted one.
func (s *TagsScreen) Override() dicomfile.Override {
	ov := dicomfile.Override{}
	for f, edited := range s.edited {
		if *edited != s.original[f] {
			ov[f] = *edited
		}
	}
	if len(ov) == 0 {
		return nil
	}
	return ov
}
