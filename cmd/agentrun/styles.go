package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/agentrun/pkg/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// printStatus prints a colored status glyph followed by a message.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// statusGlyph returns the colored glyph for a run status.
func statusGlyph(s models.RunStatus) string {
	switch s {
	case models.RunOK:
		return color.GreenString("✓")
	case models.RunError:
		return color.RedString("✗")
	case models.RunCancelled:
		return color.YellowString("⊘")
	default:
		return color.CyanString("●")
	}
}

// observationGlyph returns the colored glyph for a live observation.
func observationGlyph(t models.ObservationType) string {
	switch t {
	case models.ObservationHello:
		return color.CyanString("◆")
	case models.ObservationEvent:
		return color.BlueString("→")
	case models.ObservationWarning:
		return color.YellowString("⚠")
	case models.ObservationFinished:
		return color.GreenString("✓")
	case models.ObservationError:
		return color.RedString("✗")
	case models.ObservationCancelled:
		return color.YellowString("⊘")
	default:
		return "·"
	}
}

// formatObservation renders one live observation as a single line.
func formatObservation(o models.Observation) string {
	var b strings.Builder
	b.WriteString(mutedStyle.Render(o.Timestamp.Local().Format("15:04:05.000")))
	b.WriteString(" ")
	b.WriteString(observationGlyph(o.Type))
	b.WriteString(" ")

	label := o.Step
	if label == "" {
		label = string(o.Type)
	}
	b.WriteString(label)

	if o.Progress != nil {
		b.WriteString(fmt.Sprintf(" %s", formatProgress(*o.Progress)))
	}
	if o.Message != "" {
		b.WriteString(": ")
		b.WriteString(o.Message)
	}

	var tags []string
	if o.Late {
		tags = append(tags, "late")
	}
	if o.Unroutable {
		tags = append(tags, "unroutable task "+o.TaskID)
	}
	if len(tags) > 0 {
		b.WriteString(" ")
		b.WriteString(mutedStyle.Render("(" + strings.Join(tags, ", ") + ")"))
	}
	return b.String()
}

// formatProgress renders a fraction as a percentage. Values outside [0,1]
// are shown as reported.
func formatProgress(p float64) string {
	return fmt.Sprintf("%3.0f%%", p*100)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if m > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dh", h)
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// runSummary renders a boxed summary of a finished run.
func runSummary(r *models.Run) string {
	lines := []string{
		headerStyle.Render(fmt.Sprintf("%s run %s", statusGlyph(r.Status), r.ID)),
		fmt.Sprintf("task:     %s (%s)", r.TaskID, r.Kind),
		fmt.Sprintf("status:   %s", r.Status),
		fmt.Sprintf("duration: %s", formatDuration(r.Duration())),
	}
	if r.SubjectRef != "" {
		lines = append(lines, fmt.Sprintf("subject:  %s", r.SubjectRef))
	}
	if r.Error != "" {
		lines = append(lines, fmt.Sprintf("error:    %s", r.Error))
	}
	if len(r.Result) > 0 {
		lines = append(lines, fmt.Sprintf("result:   %s", truncate(string(r.Result), 120)))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
