package cmd

import "fmt"

// Display glyphs shared by the summary renderers.
const (
	glyphPass = "✓"
	glyphWarn = "⚠"
	glyphFail = "✗"
)

// statusGlyph maps a check status to its display glyph.
func statusGlyph(status string) string {
	switch status {
	case "pass":
		return glyphPass
	case "warn":
		return glyphWarn
	default:
		return glyphFail
	}
}

// formatSpan renders a half-open character span.
func formatSpan(start, end int) string {
	return fmt.Sprintf("[%d,%d)", start, end)
}
