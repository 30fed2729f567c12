// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
)

// Theme is the color palette for umlaut's terminal output. Colors are
// ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color
	ErrorText        lipgloss.Color

	// Anomalies observed at specific epochs, and those detected
	// before training from the model's structure.
	EpochAnomaly  lipgloss.Color
	StaticAnomaly lipgloss.Color

	// HighlightAccent marks epochs covered by a selected anomaly.
	HighlightAccent lipgloss.Color
}

// AnomalyColor returns the accent for an anomaly record.
func (theme Theme) AnomalyColor(item anomaly.Anomaly) lipgloss.Color {
	if item.IsStatic() {
		return theme.StaticAnomaly
	}
	return theme.EpochAnomaly
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),
	ErrorText:        lipgloss.Color("196"),

	EpochAnomaly:  lipgloss.Color("208"), // orange
	StaticAnomaly: lipgloss.Color("141"), // light purple

	HighlightAccent: lipgloss.Color("220"), // amber
}
