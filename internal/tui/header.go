package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar with the tickers under analysis.
type Header struct {
	width   int
	tickers []string
}

// NewHeader creates a new Header.
func NewHeader(tickers []string) *Header {
	return &Header{
		width:   80,
		tickers: tickers,
	}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// View renders the header.
func (h *Header) View() string {
	colors := []string{"#4ECDC4", "#45B7D1", "#96E6A1"}

	words := []string{"ticker", "desk"}
	var title strings.Builder
	for i, w := range words {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(colors[i%len(colors)])).Bold(true)
		title.WriteString(style.Render(w))
	}

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render("Financial analysis: " + strings.Join(h.tickers, ", "))

	return lipgloss.NewStyle().
		Width(h.width).
		PaddingBottom(1).
		Render(lipgloss.JoinVertical(lipgloss.Left, title.String(), subtitle))
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return 3 // title + subtitle + padding
}
