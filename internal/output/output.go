// Package output renders gfl's terminal output: prefixed messages, status
// badges, issue trees and tables.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/danielolaszy/gfl/internal/config"
	"github.com/danielolaszy/gfl/pkg/models"
)

// UI provides colored output.
type UI struct {
	Out    io.Writer
	ErrOut io.Writer
	Badges map[models.Status]config.Badge
}

// New creates a UI with default stdout/stderr writers.
func New(badges map[models.Status]config.Badge) *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
		Badges: badges,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	bold          = color.New(color.Bold).SprintFunc()
)

var colorNames = map[string]color.Attribute{
	"black":   color.FgBlack,
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,
	"gray":    color.FgHiBlack,
	"grey":    color.FgHiBlack,
}

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Colorize paints s with a named color; unknown names leave s unchanged.
func Colorize(name, s string) string {
	attr, ok := colorNames[strings.ToLower(name)]
	if !ok {
		return s
	}
	return color.New(attr).Sprint(s)
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

// Badge returns the colored status marker, or the bare status name when no
// badge is configured for it.
func (u *UI) Badge(status models.Status) string {
	badge, ok := u.Badges[status]
	if !ok || badge.Badge == "" {
		return string(status)
	}
	return Colorize(badge.Color, badge.Badge)
}

// IssueLine formats one issue with its badge. The current issue is bold.
func (u *UI) IssueLine(issue models.Issue, current bool) string {
	line := fmt.Sprintf("%s %s", u.Badge(issue.Status), issue.String())
	if current {
		return bold(line) + " " + Cyan("(current)")
	}
	return line
}

// IssueTree prints every story followed by its indented subtasks.
func (u *UI) IssueTree(issues []models.Issue, currentKey string) {
	if len(issues) == 0 {
		u.Info("No issues in progress")
		return
	}
	for _, issue := range issues {
		fmt.Fprintln(u.Out, u.IssueLine(issue, issue.Key == currentKey))
		for _, sub := range issue.Subtasks {
			fmt.Fprintf(u.Out, "  %s\n", u.IssueLine(sub, sub.Key == currentKey))
		}
	}
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}
