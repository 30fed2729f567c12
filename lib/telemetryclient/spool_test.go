// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSpoolRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionZstd, CompressionLZ4, CompressionNone} {
		t.Run(compression.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "run.spool")
			spool, err := CreateSpool(path, compression)
			if err != nil {
				t.Fatalf("CreateSpool: %v", err)
			}
			written := []Batch{
				{Kind: KindPlots, Session: "mnist", Path: "/api/updateSessionPlots/local:mnist", Body: []byte(`{"loss":{"train":[1,0.5]}}`)},
				{Kind: KindErrors, Session: "mnist", Path: "/api/updateSessionErrors/local:mnist", Body: []byte(`{"lr_high":{"epochs":[1]}}`)},
			}
			for _, batch := range written {
				if err := spool.Ship(t.Context(), batch); err != nil {
					t.Fatalf("Ship: %v", err)
				}
			}
			if spool.Records() != 2 {
				t.Fatalf("Records = %d, want 2", spool.Records())
			}
			if err := spool.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := spool.Ship(t.Context(), written[0]); err == nil {
				t.Fatal("Ship after Close succeeded")
			}

			read, err := ReadSpool(path)
			if err != nil {
				t.Fatalf("ReadSpool: %v", err)
			}
			if len(read) != len(written) {
				t.Fatalf("read %d records, want %d", len(read), len(written))
			}
			for i := range written {
				if read[i].Kind != written[i].Kind || read[i].Session != written[i].Session ||
					read[i].Path != written[i].Path || string(read[i].Body) != string(written[i].Body) {
					t.Fatalf("record %d = %+v, want %+v", i, read[i], written[i])
				}
			}
		})
	}
}

func TestSpoolTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.spool")
	spool, err := CreateSpool(path, CompressionNone)
	if err != nil {
		t.Fatalf("CreateSpool: %v", err)
	}
	spool.Ship(t.Context(), batchOf(`{"loss":{"train":[1,1]}}`))
	spool.Ship(t.Context(), batchOf(`{"loss":{"train":[2,1]}}`))
	spool.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if err := os.Truncate(path, info.Size()-3); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	read, err := ReadSpool(path)
	if !errors.Is(err, ErrTruncatedSpool) {
		t.Fatalf("ReadSpool error = %v, want ErrTruncatedSpool", err)
	}
	if len(read) != 1 {
		t.Fatalf("read %d intact records, want 1", len(read))
	}
}

func TestReadSpoolRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.spool")
	os.WriteFile(path, []byte("PK\x03\x04 zip file"), 0o644)
	if _, err := ReadSpool(path); err == nil {
		t.Fatal("ReadSpool accepted a foreign file")
	}
}

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]Compression{"": CompressionZstd, "ZSTD": CompressionZstd, "lz4": CompressionLZ4, "none": CompressionNone} {
		got, err := ParseCompression(name)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
}
