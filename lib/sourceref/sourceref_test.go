// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sourceref

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func writeSource(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.go")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLocateReference(t *testing.T) {
	path := writeSource(t, "package main\n\nfunc main() {\n\toptimizer := NewAdam(LearningRate(0.5))\n}\n")
	file, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	location, ok := file.LocateReference(regexp.MustCompile(`LearningRate`))
	if !ok {
		t.Fatal("LocateReference found nothing")
	}
	if location.Line != 4 {
		t.Errorf("Line = %d, want 4", location.Line)
	}
	if location.Text != "optimizer := NewAdam(LearningRate(0.5))" {
		t.Errorf("Text = %q", location.Text)
	}
	if location.Path != path {
		t.Errorf("Path = %q, want %q", location.Path, path)
	}

	if _, ok := file.LocateReference(regexp.MustCompile(`softmax`)); ok {
		t.Error("LocateReference matched a pattern absent from the file")
	}
}

func TestNilFileFindsNothing(t *testing.T) {
	var file *File
	if _, ok := file.LocateReference(regexp.MustCompile(`.`)); ok {
		t.Error("nil File located a reference")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.go")); err == nil {
		t.Error("Load(absent) succeeded, want error")
	}
}

func TestCallerLoadsThisFile(t *testing.T) {
	file, err := Caller(0)
	if err != nil {
		t.Fatalf("Caller(0): %v", err)
	}
	if !strings.HasSuffix(file.Path(), "sourceref_test.go") {
		t.Errorf("Caller(0).Path() = %q, want this test file", file.Path())
	}
	if _, ok := file.LocateReference(regexp.MustCompile(`func TestCallerLoadsThisFile`)); !ok {
		t.Error("Caller(0) file does not contain this test")
	}
}
