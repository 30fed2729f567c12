// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sourceref

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
)

// Locator maps a pattern to a source location.
type Locator interface {
	LocateReference(pattern *regexp.Regexp) (anomaly.Location, bool)
}

// File is a source file held in memory.
type File struct {
	path  string
	lines []string
}

// Load reads path into memory.
func Load(path string) (*File, error) {
	handle, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sourceref: %w", err)
	}
	defer handle.Close()

	var lines []string
	scanner := bufio.NewScanner(handle)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sourceref: reading %s: %w", path, err)
	}
	return &File{path: path, lines: lines}, nil
}

// Caller loads the source file of the function skip frames above the
// caller of Caller. Caller(0) loads the file that called Caller.
func Caller(skip int) (*File, error) {
	_, path, _, ok := runtime.Caller(skip + 1)
	if !ok {
		return nil, fmt.Errorf("sourceref: caller %d not available", skip)
	}
	return Load(path)
}

// Path returns the file's path as loaded.
func (f *File) Path() string { return f.path }

// LocateReference returns the first line matching pattern. Line
// numbers are 1-based.
func (f *File) LocateReference(pattern *regexp.Regexp) (anomaly.Location, bool) {
	if f == nil || pattern == nil {
		return anomaly.Location{}, false
	}
	for index, line := range f.lines {
		if pattern.MatchString(line) {
			return anomaly.Location{
				Path: f.path,
				Line: index + 1,
				Text: strings.TrimSpace(line),
			}, true
		}
	}
	return anomaly.Location{}, false
}
