// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package anomaly

import (
	"fmt"
	"strings"
)

// Anomaly is one detected condition. Epochs is nil for static
// anomalies. Reference optionally points at the source line most
// likely responsible.
type Anomaly struct {
	Kind      Kind      `json:"kind"`
	Epochs    EpochSet  `json:"epochs"`
	Remarks   string    `json:"remarks,omitempty"`
	Reference *Location `json:"reference,omitempty"`
}

// Location is a line in the training job's source.
type Location struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text,omitempty"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.Path, l.Line)
}

// At returns a per-epoch anomaly of kind detected at epoch.
func At(kind Kind, epoch int, remarks string) Anomaly {
	return Anomaly{Kind: kind, Epochs: Epochs(epoch), Remarks: remarks}
}

// Static returns a static anomaly of kind.
func Static(kind Kind, remarks string) Anomaly {
	return Anomaly{Kind: kind, Remarks: remarks}
}

// IsStatic reports whether a was detected before training.
func (a Anomaly) IsStatic() bool { return a.Epochs.IsStatic() }

// Merge folds a later observation of the same kind into a: epochs
// union, remarks and reference last-write-wins. An empty later remark
// or nil reference leaves the earlier value in place.
func (a Anomaly) Merge(later Anomaly) Anomaly {
	merged := a
	merged.Epochs = a.Epochs.Union(later.Epochs)
	if later.Remarks != "" {
		merged.Remarks = later.Remarks
	}
	if later.Reference != nil {
		merged.Reference = later.Reference
	}
	return merged
}

// Format renders a as plain text for terminal output: title,
// explanation, remediation, and when it was captured.
func Format(a Anomaly) string {
	entry := Describe(a.Kind)

	var builder strings.Builder
	builder.WriteString(entry.Title)
	builder.WriteString("\n")
	builder.WriteString(entry.Explanation)
	if a.Remarks != "" {
		builder.WriteString(" (")
		builder.WriteString(strings.TrimSpace(a.Remarks))
		builder.WriteString(")")
	}
	builder.WriteString("\n\nSolution:\n")
	builder.WriteString(entry.Remediation)
	builder.WriteString("\n")
	if a.Reference != nil {
		fmt.Fprintf(&builder, "\nSee %s", a.Reference)
		if a.Reference.Text != "" {
			fmt.Fprintf(&builder, ": %s", strings.TrimSpace(a.Reference.Text))
		}
		builder.WriteString("\n")
	}
	builder.WriteString(Captured(a.Epochs))
	builder.WriteString("\n")
	return builder.String()
}

// Captured describes when an anomaly was observed.
func Captured(epochs EpochSet) string {
	if epochs.IsStatic() {
		return "Captured before start of training."
	}
	return fmt.Sprintf("Captured at epochs %v.", []int(epochs))
}
