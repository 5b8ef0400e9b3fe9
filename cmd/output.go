package cmd

import (
	"encoding/json"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/vidq/config"
)

// Colors used in text output.
var (
	ColorRed    = lipgloss.Color("#FF5F5F")
	ColorGreen  = lipgloss.Color("#5FD75F")
	ColorYellow = lipgloss.Color("#FFD75F")
	ColorCyan   = lipgloss.Color("#5FD7FF")
	ColorGray   = lipgloss.Color("#808080")
)

// Styles reused by the commands.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	BulletStyle = lipgloss.NewStyle().
			Foreground(ColorCyan)

	OKStyle = lipgloss.NewStyle().
		Foreground(ColorGreen)

	WarnStyle = lipgloss.NewStyle().
			Foreground(ColorYellow)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)
)

// writeStructured writes v as JSON or YAML. It reports false for text
// output so the caller renders its own view.
func writeStructured(w io.Writer, format config.OutputFormat, v any) (bool, error) {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

// label renders a right-padded field label.
func label(s string) string {
	return LabelStyle.Render(padRight(s+":", 14))
}

func padRight(s string, n int) string {
	for len(s) < n {
		s += " "
	}
	return s
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
