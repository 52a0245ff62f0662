// Package ui renders styled terminal output and wraps the interactive
// prompts.
package ui

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"

	"clipsqueeze/internal/probe"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			MarginBottom(1)

	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#06B6D4")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#111827"))
)

// DisplaySourceInfo prints the probed source metadata in a bordered panel.
func DisplaySourceInfo(media *probe.SourceMedia) {
	content := fmt.Sprintf(
		"%s %s\n"+
			"%s %s\n"+
			"%s %dx%d\n"+
			"%s %.2f fps\n"+
			"%s %s",
		labelStyle.Render("File:"), valueStyle.Render(filepath.Base(media.Path)),
		labelStyle.Render("Size:"), valueStyle.Render(FormatFileSize(media.SizeBytes)),
		labelStyle.Render("Dimensions:"), media.Width, media.Height,
		labelStyle.Render("Frame rate:"), media.FrameRate,
		labelStyle.Render("Duration:"), valueStyle.Render(FormatDuration(media.Duration)),
	)
	fmt.Println(infoStyle.Render(content))
}

// FormatFileSize converts bytes to a human-readable form.
func FormatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration converts seconds to MM:SS, or H:MM:SS past an hour.
func FormatDuration(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
