// Package prompt holds gfl's interactive terminal forms.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/danielolaszy/gfl/internal/engine"
	"github.com/danielolaszy/gfl/internal/output"
	"github.com/danielolaszy/gfl/pkg/models"
)

// ErrAborted is returned when the user cancels a form.
var ErrAborted = errors.New("cancelled")

func run(form *huh.Form) error {
	err := form.WithTheme(huh.ThemeCharm()).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	if err != nil {
		return fmt.Errorf("form error: %w", err)
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// uniqueID rejects empty ids and ids for which exists reports true.
func uniqueID(resource string, exists func(string) bool) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("%s id is required", resource)
		}
		if exists != nil && exists(s) {
			return fmt.Errorf("%s %s already exists", resource, s)
		}
		return nil
	}
}

// SplitList splits a comma-separated answer, dropping blanks.
func SplitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Selector implements engine.Selector with huh forms.
type Selector struct {
	ui *output.UI
}

// NewSelector returns a selector rendering badges through ui.
func NewSelector(ui *output.UI) *Selector {
	return &Selector{ui: ui}
}

// ChoiceLabel renders one selection line; subtasks are indented and the
// pointed line is marked.
func (s *Selector) ChoiceLabel(c engine.Choice, pointed bool) string {
	label := s.ui.IssueLine(c.Issue, false)
	if c.Subtask {
		label = "  " + label
	}
	if pointed {
		label += " ‹"
	}
	return label
}

// SelectIssues shows the whole issue tree and lets the user tick the
// enabled issues. Disabled issues appear in the overview only.
func (s *Selector) SelectIssues(title string, choices []engine.Choice, pointer int) ([]models.Issue, error) {
	var overview []string
	var options []huh.Option[string]
	byKey := make(map[string]models.Issue)
	for i, c := range choices {
		label := s.ChoiceLabel(c, i == pointer)
		overview = append(overview, label)
		if c.Disabled {
			continue
		}
		options = append(options, huh.NewOption(label, c.Issue.Key))
		byKey[c.Issue.Key] = c.Issue
	}
	if len(options) == 0 {
		return nil, nil
	}

	var keys []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Issues").
				Description(strings.Join(overview, "\n")),
			huh.NewMultiSelect[string]().
				Title(title).
				Description("space to toggle, enter to confirm").
				Options(options...).
				Value(&keys),
		),
	)
	if err := run(form); err != nil {
		return nil, err
	}

	// Keep the tree order regardless of toggle order.
	picked := make(map[string]bool, len(keys))
	for _, key := range keys {
		picked[key] = true
	}
	var selected []models.Issue
	for _, c := range choices {
		if picked[c.Issue.Key] && !c.Disabled {
			selected = append(selected, byKey[c.Issue.Key])
		}
	}
	return selected, nil
}

// SelectIssue lets the user pick one issue.
func (s *Selector) SelectIssue(title string, issues []models.Issue) (models.Issue, bool, error) {
	if len(issues) == 0 {
		return models.Issue{}, false, nil
	}
	options := make([]huh.Option[int], len(issues))
	for i, issue := range issues {
		options[i] = huh.NewOption(s.ui.IssueLine(issue, false), i)
	}

	var idx int
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title(title).
			Options(options...).
			Value(&idx),
	))
	if err := run(form); err != nil {
		return models.Issue{}, false, err
	}
	return issues[idx], true, nil
}
