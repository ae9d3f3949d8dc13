package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	hotspotFlame = lipgloss.Color("208")
	honeyOrange  = lipgloss.Color("214")
	beeYellow    = lipgloss.Color("226")
	mint         = lipgloss.Color("121")
	cobalt       = lipgloss.Color("33")
	deepIndigo   = lipgloss.Color("61")
	fuchsia      = lipgloss.Color("177")
	outlineGray  = lipgloss.Color("244")

	gradient = []lipgloss.Color{hotspotFlame, honeyOrange, beeYellow, mint, cobalt, deepIndigo, fuchsia}

	noticeStyle = lipgloss.NewStyle().Foreground(honeyOrange)
	focusStyle  = lipgloss.NewStyle().Bold(true).Foreground(hotspotFlame)
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(outlineGray)
)

// Banner renders the colored threadtop wordmark with its tagline.
func Banner() string {
	var b strings.Builder
	for i, r := range "threadtop" {
		style := lipgloss.NewStyle().Bold(true).Foreground(gradient[i%len(gradient)])
		b.WriteString(style.Render(string(r)))
	}
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("•  per-thread cpu & allocation lens"))
	b.WriteString("\n")
	return b.String()
}

// Notice styles a one-time warning line.
func Notice(s string) string { return noticeStyle.Render(s) }

// Focus styles the focus line.
func Focus(s string) string { return focusStyle.Render(s) }

// Header styles table headers and section titles.
func Header(s string) string { return headerStyle.Render(s) }
