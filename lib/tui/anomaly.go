// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
)

// RenderAnomaly renders one anomaly for a terminal: its title in the
// anomaly's accent, the explanation with any remarks, the remediation
// as markdown under a "Solution" heading, the source reference, and
// when it was captured.
func RenderAnomaly(item anomaly.Anomaly, theme Theme, width int) string {
	entry := anomaly.Describe(item.Kind)
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.AnomalyColor(item))
	heading := lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground)
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)

	explanation := entry.Explanation
	if item.Remarks != "" {
		explanation += " (" + strings.TrimSpace(item.Remarks) + ")"
	}

	var builder strings.Builder
	builder.WriteString(title.Render(entry.Title))
	builder.WriteString("\n\n")
	builder.WriteString(RenderMarkdown(explanation, theme, width))
	builder.WriteString("\n\n")
	builder.WriteString(heading.Render("Solution"))
	builder.WriteString("\n")
	builder.WriteString(RenderMarkdown(entry.Remediation, theme, width))
	builder.WriteString("\n\n")
	if item.Reference != nil {
		reference := "See " + item.Reference.String()
		if item.Reference.Text != "" {
			reference += ": " + strings.TrimSpace(item.Reference.Text)
		}
		builder.WriteString(faint.Render(reference))
		builder.WriteString("\n")
	}
	builder.WriteString(faint.Render(anomaly.Captured(item.Epochs)))
	return builder.String()
}
