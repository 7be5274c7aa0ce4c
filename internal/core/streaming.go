package core

// streaming.go provides the io.Reader wrappers applied to the input before parsing.
//
//   - SkipBOM: drops a leading UTF-8 byte order mark
//   - UTF8Validator: fails on the first invalid UTF-8 sequence
//   - CountingReader: tracks bytes read for progress logs
//
// Use WrapForStreaming to apply all three in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader that yields r's content without a leading UTF-8 BOM.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Validator passes bytes through unchanged and returns an *EncodingError
// at the first invalid UTF-8 sequence. Sequences split across reads are
// validated once their remaining bytes arrive.
type UTF8Validator struct {
	reader  io.Reader
	offset  int64  // absolute offset of the first byte not yet validated
	pending []byte // incomplete sequence at the end of the previous read
}

// NewUTF8Validator creates a validating reader.
func NewUTF8Validator(r io.Reader) *UTF8Validator {
	return &UTF8Validator{reader: r}
}

// Read implements io.Reader.
func (v *UTF8Validator) Read(p []byte) (int, error) {
	n, err := v.reader.Read(p)
	if n > 0 {
		if verr := v.check(p[:n]); verr != nil {
			return 0, verr
		}
	}
	if err == io.EOF && len(v.pending) > 0 {
		return n, &EncodingError{Offset: v.offset}
	}
	return n, err
}

func (v *UTF8Validator) check(b []byte) error {
	if len(v.pending) == 0 && isAllASCII(b) {
		v.offset += int64(len(b))
		return nil
	}

	data := b
	if len(v.pending) > 0 {
		data = make([]byte, 0, len(v.pending)+len(b))
		data = append(data, v.pending...)
		data = append(data, b...)
	}

	for i := 0; i < len(data); {
		if data[i] < utf8.RuneSelf {
			i++
			continue
		}
		if !utf8.FullRune(data[i:]) {
			tail := make([]byte, len(data)-i)
			copy(tail, data[i:])
			v.pending = tail
			v.offset += int64(i)
			return nil
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return &EncodingError{Offset: v.offset + int64(i)}
		}
		i += size
	}

	v.pending = nil
	v.offset += int64(len(data))
	return nil
}

// isAllASCII is the fast path: most of the export is ASCII.
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // 0 if unknown
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{
		reader: r,
		Total:  total,
	}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}

// WrapForStreaming applies byte counting, BOM skipping and UTF-8 validation.
//
// Counting sits closest to the file so progress is measured against its size;
// the BOM is dropped before validation so offsets in encoding errors refer to
// the text that follows it.
func WrapForStreaming(r io.Reader, totalSize int64) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r, totalSize)
	return NewUTF8Validator(SkipBOM(counter)), counter
}
