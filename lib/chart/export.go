// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFiles renders each spec to "<prefix>-<title>.png" under dir,
// creating dir if needed, and returns the written paths in spec order.
// Specs with no points are skipped. Each file is written to a
// temporary name and renamed into place so a reader never sees a
// partial image.
func WriteFiles(dir, prefix string, specs []Spec) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chart: creating %s: %w", dir, err)
	}
	var paths []string
	for _, spec := range specs {
		name := FileName(prefix, spec.Title)
		path := filepath.Join(dir, name)
		err := writeFile(path, spec)
		if errors.Is(err, ErrNoData) {
			continue
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, spec Spec) error {
	temp, err := os.CreateTemp(filepath.Dir(path), ".chart-*.png")
	if err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	defer os.Remove(temp.Name())

	if err := Render(temp, spec); err != nil {
		temp.Close()
		return err
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("chart: writing %s: %w", path, err)
	}
	if err := os.Rename(temp.Name(), path); err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	return nil
}

// FileName joins prefix and title into a PNG file name, replacing
// anything outside [A-Za-z0-9._-] with an underscore.
func FileName(prefix, title string) string {
	base := title
	if prefix != "" {
		base = prefix + "-" + title
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base) + ".png"
}
