package prompt

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/danielolaszy/gfl/internal/config"
	"github.com/danielolaszy/gfl/internal/engine"
	"github.com/danielolaszy/gfl/internal/output"
	"github.com/danielolaszy/gfl/pkg/models"
)

func TestSplitList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "single", input: "In Progress", expected: []string{"In Progress"}},
		{name: "trims and drops blanks", input: " To Do, ,Backlog ,", expected: []string{"To Do", "Backlog"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SplitList(tc.input))
		})
	}
}

func TestUniqueID(t *testing.T) {
	validate := uniqueID("project", func(id string) bool { return id == "taken" })

	assert.Error(t, validate(""))
	assert.Error(t, validate("  "))
	assert.EqualError(t, validate("taken"), "project taken already exists")
	assert.NoError(t, validate("free"))
}

func TestValidatePRURL(t *testing.T) {
	assert.NoError(t, ValidatePRURL("https://github.com/o/r/compare/%s?expand=1"))
	assert.Error(t, ValidatePRURL("https://github.com/o/r/compare"))
	assert.Error(t, ValidatePRURL("%s/%s"))
}

func TestChoiceLabel(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	ui := &output.UI{Badges: map[models.Status]config.Badge{models.StatusOpen: {Badge: "•"}}}
	s := NewSelector(ui)
	issue := models.Issue{Key: "PRJ-2", Summary: "Form", Status: models.StatusOpen}

	assert.Equal(t, "• PRJ-2: Form", s.ChoiceLabel(engine.Choice{Issue: issue}, false))
	assert.Equal(t, "  • PRJ-2: Form ‹", s.ChoiceLabel(engine.Choice{Issue: issue, Subtask: true}, true))
}

func TestSelectIssues_NothingEnabled(t *testing.T) {
	s := NewSelector(&output.UI{})
	selected, err := s.SelectIssues("pick", []engine.Choice{{Issue: models.Issue{Key: "PRJ-1"}, Disabled: true}}, 0)
	assert.NoError(t, err)
	assert.Nil(t, selected)
}

func TestSelectIssue_Empty(t *testing.T) {
	s := NewSelector(&output.UI{})
	_, ok, err := s.SelectIssue("pick", nil)
	assert.NoError(t, err)
	assert.False(t, ok)
}
