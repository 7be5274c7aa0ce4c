package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkBytes is the amount of input parsed per chunk.
const DefaultChunkBytes int64 = 25_000_000

// DefaultSampleBytes is the amount of input used to infer column types.
const DefaultSampleBytes int64 = 256_000

// InputSeparator is the field separator of the product export.
const InputSeparator = '\t'

// ReaderOptions configures a ChunkReader.
type ReaderOptions struct {
	ChunkBytes int64 // default DefaultChunkBytes
	TotalBytes int64 // input size for progress, 0 if unknown
}

// ChunkReader parses tab-separated input into chunks of roughly ChunkBytes.
// A chunk always ends on a record boundary.
type ChunkReader struct {
	csv        *csv.Reader
	counter    *CountingReader
	header     []string
	chunkBytes int64
	offset     int64
	done       bool
}

// NewChunkReader reads the header row of r and prepares chunked reads.
func NewChunkReader(r io.Reader, opts ReaderOptions) (*ChunkReader, error) {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = DefaultChunkBytes
	}

	wrapped, counter := WrapForStreaming(r, opts.TotalBytes)

	cr := csv.NewReader(wrapped)
	cr.Comma = InputSeparator
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &FormatError{Err: errors.New("no header row")}
	}
	if err != nil {
		return nil, wrapParseError(err)
	}

	return &ChunkReader{
		csv:        cr,
		counter:    counter,
		header:     header,
		chunkBytes: opts.ChunkBytes,
		offset:     cr.InputOffset(),
	}, nil
}

// Header returns the input header row.
func (c *ChunkReader) Header() []string {
	return c.header
}

// BytesRead returns the number of input bytes consumed so far.
func (c *ChunkReader) BytesRead() int64 {
	return c.counter.BytesRead
}

// Progress returns the read progress as a percentage, or 0 if the size is unknown.
func (c *ChunkReader) Progress() int {
	return c.counter.Progress()
}

// Next returns the next chunk of records, or io.EOF when the input is exhausted.
// Records wider than the header fail with a *FormatError naming the line.
func (c *ChunkReader) Next() (*Chunk, error) {
	if c.done {
		return nil, io.EOF
	}

	chunk := &Chunk{}
	start := c.offset

	for c.offset-start < c.chunkBytes {
		rec, err := c.csv.Read()
		if errors.Is(err, io.EOF) {
			c.done = true
			break
		}
		if err != nil {
			return nil, wrapParseError(err)
		}

		line, _ := c.csv.FieldPos(0)
		if len(rec) > len(c.header) {
			return nil, &FormatError{
				Line: line,
				Err:  fmt.Errorf("expected %d fields, saw %d", len(c.header), len(rec)),
			}
		}

		chunk.Records = append(chunk.Records, rec)
		chunk.Lines = append(chunk.Lines, line)
		c.offset = c.csv.InputOffset()
	}

	if chunk.Len() == 0 {
		return nil, io.EOF
	}
	chunk.Offset = c.offset
	return chunk, nil
}

// wrapParseError converts csv parse errors to *FormatError. Errors from the
// underlying reader, such as *EncodingError, are returned unchanged.
func wrapParseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &FormatError{Line: pe.StartLine, Err: pe.Err}
	}
	return err
}
