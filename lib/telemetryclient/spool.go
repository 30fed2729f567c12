// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetryclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/umlaut/lib/codec"
)

// Compression selects how spool records are compressed. The value is
// written as the spool header's tag byte.
type Compression byte

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
	CompressionLZ4  Compression = 2
)

// ParseCompression maps "zstd", "lz4" and "none" to a Compression.
// The empty string means zstd.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	}
	return 0, fmt.Errorf("unknown spool compression %q", name)
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	}
	return fmt.Sprintf("Compression(%d)", byte(c))
}

// spoolMagic opens every spool file, followed by spoolVersion and the
// compression tag.
const (
	spoolMagic   = "UMSP"
	spoolVersion = 1
)

// ErrTruncatedSpool is returned by ReadSpool when the journal ends
// mid-record, as it does after a crash. The records before the damage
// are still returned.
var ErrTruncatedSpool = errors.New("spool is truncated")

// flushWriteCloser is what the zstd and lz4 writers have in common.
type flushWriteCloser interface {
	io.WriteCloser
	Flush() error
}

// Spool journals batches to a file while the client is offline. Each
// record is one CBOR-encoded Batch inside a single compressed stream;
// the stream is flushed after every record so a crash loses at most
// the record being written.
//
// Spool implements Shipper. Safe for concurrent use.
type Spool struct {
	mu         sync.Mutex
	file       *os.File
	compressor flushWriteCloser
	encoder    *codec.Encoder
	records    int
}

// CreateSpool creates (truncating) a spool at path.
func CreateSpool(path string, compression Compression) (*Spool, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating spool: %w", err)
	}
	header := append([]byte(spoolMagic), spoolVersion, byte(compression))
	if _, err := file.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing spool header: %w", err)
	}

	spool := &Spool{file: file}
	var sink io.Writer = file
	switch compression {
	case CompressionZstd:
		encoder, err := zstd.NewWriter(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		spool.compressor = encoder
		sink = encoder
	case CompressionLZ4:
		writer := lz4.NewWriter(file)
		spool.compressor = writer
		sink = writer
	case CompressionNone:
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported spool compression %v", compression)
	}
	spool.encoder = codec.NewEncoder(sink)
	return spool, nil
}

// Ship appends batch to the journal.
func (s *Spool) Ship(_ context.Context, batch Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.New("spool is closed")
	}
	if err := s.encoder.Encode(batch); err != nil {
		return fmt.Errorf("encoding spool record: %w", err)
	}
	if s.compressor != nil {
		if err := s.compressor.Flush(); err != nil {
			return fmt.Errorf("flushing spool: %w", err)
		}
	}
	s.records++
	return nil
}

// Records returns the number of batches written.
func (s *Spool) Records() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

// Close finishes the compressed stream and closes the file.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	var errs []error
	if s.compressor != nil {
		errs = append(errs, s.compressor.Close())
	}
	errs = append(errs, s.file.Close())
	s.file = nil
	return errors.Join(errs...)
}

// ReadSpool returns every batch in the journal at path, in write order.
func ReadSpool(path string) ([]Batch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening spool: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	header := make([]byte, len(spoolMagic)+2)
	if _, err := io.ReadFull(reader, header); err != nil {
		return nil, fmt.Errorf("reading spool header: %w", err)
	}
	if string(header[:len(spoolMagic)]) != spoolMagic {
		return nil, fmt.Errorf("%s is not an umlaut spool", path)
	}
	if version := header[len(spoolMagic)]; version != spoolVersion {
		return nil, fmt.Errorf("unsupported spool version %d", version)
	}

	var source io.Reader
	switch compression := Compression(header[len(spoolMagic)+1]); compression {
	case CompressionNone:
		source = reader
	case CompressionZstd:
		decoder, err := zstd.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		defer decoder.Close()
		source = decoder
	case CompressionLZ4:
		source = lz4.NewReader(reader)
	default:
		return nil, fmt.Errorf("unsupported spool compression %v", compression)
	}

	var batches []Batch
	decoder := codec.NewDecoder(source)
	for {
		var batch Batch
		err := decoder.Decode(&batch)
		if errors.Is(err, io.EOF) {
			return batches, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return batches, fmt.Errorf("%w after %d records", ErrTruncatedSpool, len(batches))
		}
		if err != nil {
			return batches, fmt.Errorf("decoding spool record %d: %w", len(batches), err)
		}
		batches = append(batches, batch)
	}
}
