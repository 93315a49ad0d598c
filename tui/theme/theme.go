package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultThemeName = "kanagawa"

// --- Kanagawa palette ---
const (
	kanagawaDarkGreen    = "#98BB6C"
	kanagawaDarkYellow   = "#FF9E3B"
	kanagawaDarkRed      = "#FF5D62"
	kanagawaDarkOrange   = "#FFA066"
	kanagawaDarkCyan     = "#7E9CD8"
	kanagawaDarkBlue     = "#7FB4CA"
	kanagawaDarkViolet   = "#957FB8"
	kanagawaDarkMuted    = "#727169"
	kanagawaDarkBorder   = "#363646"
	kanagawaDarkSelected = "#223249"

	kanagawaLightGreen    = "#4E7C5A"
	kanagawaLightYellow   = "#A68A64"
	kanagawaLightRed      = "#C34043"
	kanagawaLightOrange   = "#CC6B4E"
	kanagawaLightCyan     = "#5B8BBE"
	kanagawaLightBlue     = "#4F7CAC"
	kanagawaLightViolet   = "#674D7A"
	kanagawaLightMuted    = "#6C7086"
	kanagawaLightBorder   = "#B5BDC5"
	kanagawaLightSelected = "#E2E6F3"
)

// --- Terminal (ANSI-friendly) palette ---
const (
	terminalGreen    = "2"
	terminalYellow   = "3"
	terminalRed      = "1"
	terminalOrange   = "208"
	terminalCyan     = "6"
	terminalBlue     = "4"
	terminalViolet   = "5"
	terminalMuted    = "8"
	terminalBorder   = "8"
	terminalSelected = "8"
)

// Colors is the palette of a theme.
type Colors struct {
	Green              lipgloss.TerminalColor
	Yellow             lipgloss.TerminalColor
	Red                lipgloss.TerminalColor
	Orange             lipgloss.TerminalColor
	Cyan               lipgloss.TerminalColor
	Blue               lipgloss.TerminalColor
	Violet             lipgloss.TerminalColor
	MutedText          lipgloss.TerminalColor
	Border             lipgloss.TerminalColor
	SelectedBackground lipgloss.TerminalColor
}

// Theme holds the styles shared by the CLI help and the viewer.
type Theme struct {
	Name   string
	Colors Colors

	Header lipgloss.Style

	// Status indicators
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold     lipgloss.Style
	Italic   lipgloss.Style
	Muted    lipgloss.Style
	Selected lipgloss.Style

	Highlight  lipgloss.Style
	DetailsBox lipgloss.Style
}

var themeRegistry = map[string]func() Colors{
	"kanagawa": newKanagawaColors,
	"terminal": newTerminalColors,
}

// DefaultTheme is selected by MODELCORE_THEME, falling back to kanagawa.
var DefaultTheme = NewThemeWithName(os.Getenv("MODELCORE_THEME"))

// NewThemeWithName builds the named theme. Unknown names get the default theme.
func NewThemeWithName(name string) *Theme {
	key := normalizeThemeName(name)
	builder, ok := themeRegistry[key]
	if !ok {
		key = defaultThemeName
		builder = themeRegistry[key]
	}
	return newThemeFromColors(builder(), key)
}

func newThemeFromColors(colors Colors, name string) *Theme {
	return &Theme{
		Name:   name,
		Colors: colors,

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Orange),

		Success: lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(colors.Red).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(colors.Yellow).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(colors.Cyan).
			Bold(true),

		Bold:   lipgloss.NewStyle().Bold(true),
		Italic: lipgloss.NewStyle().Italic(true),
		Muted:  lipgloss.NewStyle().Faint(true),

		Selected: lipgloss.NewStyle().
			Background(colors.SelectedBackground).
			Bold(true),

		Highlight: lipgloss.NewStyle().
			Foreground(colors.Orange).
			Bold(true),

		DetailsBox: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colors.Violet).
			Padding(0, 1),
	}
}

func normalizeThemeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")
	return normalized
}

func newKanagawaColors() Colors {
	return Colors{
		Green:              lipgloss.AdaptiveColor{Light: kanagawaLightGreen, Dark: kanagawaDarkGreen},
		Yellow:             lipgloss.AdaptiveColor{Light: kanagawaLightYellow, Dark: kanagawaDarkYellow},
		Red:                lipgloss.AdaptiveColor{Light: kanagawaLightRed, Dark: kanagawaDarkRed},
		Orange:             lipgloss.AdaptiveColor{Light: kanagawaLightOrange, Dark: kanagawaDarkOrange},
		Cyan:               lipgloss.AdaptiveColor{Light: kanagawaLightCyan, Dark: kanagawaDarkCyan},
		Blue:               lipgloss.AdaptiveColor{Light: kanagawaLightBlue, Dark: kanagawaDarkBlue},
		Violet:             lipgloss.AdaptiveColor{Light: kanagawaLightViolet, Dark: kanagawaDarkViolet},
		MutedText:          lipgloss.AdaptiveColor{Light: kanagawaLightMuted, Dark: kanagawaDarkMuted},
		Border:             lipgloss.AdaptiveColor{Light: kanagawaLightBorder, Dark: kanagawaDarkBorder},
		SelectedBackground: lipgloss.AdaptiveColor{Light: kanagawaLightSelected, Dark: kanagawaDarkSelected},
	}
}

func newTerminalColors() Colors {
	return Colors{
		Green:              lipgloss.Color(terminalGreen),
		Yellow:             lipgloss.Color(terminalYellow),
		Red:                lipgloss.Color(terminalRed),
		Orange:             lipgloss.Color(terminalOrange),
		Cyan:               lipgloss.Color(terminalCyan),
		Blue:               lipgloss.Color(terminalBlue),
		Violet:             lipgloss.Color(terminalViolet),
		MutedText:          lipgloss.Color(terminalMuted),
		Border:             lipgloss.Color(terminalBorder),
		SelectedBackground: lipgloss.Color(terminalSelected),
	}
}
