package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/JonMunkholm/nutriclean/internal/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ContextCheckInterval is how many rows are processed between cancellation checks.
const ContextCheckInterval = 1000

// ProgressInterval is the minimum time between progress log lines.
var ProgressInterval = 2 * time.Second

// chunkQueue is the number of parsed chunks buffered between reader and filter.
const chunkQueue = 2

// LoaderOptions configures a Loader. Zero values select the defaults.
type LoaderOptions struct {
	ChunkBytes    int64
	SampleBytes   int64
	Overrides     map[string]FieldType
	FilterColumns FilterColumns
}

// Loader builds filter plans over tab-separated product exports.
type Loader struct {
	opts LoaderOptions
}

// NewLoader creates a Loader, filling unset options with defaults.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = DefaultChunkBytes
	}
	if opts.SampleBytes <= 0 {
		opts.SampleBytes = DefaultSampleBytes
	}
	if opts.Overrides == nil {
		opts.Overrides = DefaultDtypeOverrides
	}
	if opts.FilterColumns == (FilterColumns{}) {
		opts.FilterColumns = DefaultFilterColumns
	}
	return &Loader{opts: opts}
}

// Plan is a deferred filter over one input file. Building a plan reads only the
// header and a type-inference sample; Stream, Materialize and WriteOutput read
// the whole file. A Plan is immutable and may be executed more than once.
type Plan struct {
	path       string
	header     []string
	indexes    []int
	columns    []Column
	predicate  *Predicate
	chunkBytes int64
}

// LoadAndFilter validates the input against headers, infers column types from
// a sample, and returns a plan that keeps rows whose category is in categories,
// whose country is in countries, and whose product name and nutrition grade are
// present. The plan's output has exactly headers as columns, in order.
func (l *Loader) LoadAndFilter(ctx context.Context, filePath string, headers, categories, countries []string) (*Plan, error) {
	start := time.Now()
	logger := logging.FromContext(ctx)
	logger.Info("cleaning input, please wait", "path", filePath)

	f, size, err := openInput(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr, err := NewChunkReader(f, ReaderOptions{ChunkBytes: l.opts.SampleBytes, TotalBytes: size})
	if err != nil {
		return nil, err
	}

	header := cr.Header()
	indexes, err := projectHeaders(header, headers)
	if err != nil {
		return nil, err
	}

	pred, err := NewPredicate(headers, l.opts.FilterColumns, categories, countries)
	if err != nil {
		return nil, err
	}

	var sample [][]string
	chunk, err := cr.Next()
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		return nil, err
	default:
		sample = chunk.Records
	}

	types := InferTypes(header, indexes, sample, l.opts.Overrides)
	columns := make([]Column, len(headers))
	for i, h := range headers {
		columns[i] = Column{Name: h, Type: types[i]}
	}

	plan := &Plan{
		path:       filePath,
		header:     slices.Clone(header),
		indexes:    indexes,
		columns:    columns,
		predicate:  pred,
		chunkBytes: l.opts.ChunkBytes,
	}

	logger.Info("plan ready",
		"columns", len(columns),
		"sample_rows", len(sample),
		"elapsed", time.Since(start).String(),
	)
	return plan, nil
}

func openInput(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, fmt.Errorf("%w: %w", ErrInputNotFound, err)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open input: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("open input: %s is a directory", path)
	}
	return f, info.Size(), nil
}

// projectHeaders returns the input index of each requested column.
func projectHeaders(header, wanted []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	indexes := make([]int, len(wanted))
	var missing []string
	for i, w := range wanted {
		idx, ok := pos[w]
		if !ok {
			missing = append(missing, w)
			continue
		}
		indexes[i] = idx
	}
	if len(missing) > 0 {
		return nil, &FormatError{Missing: missing}
	}
	return indexes, nil
}

// Path returns the input path.
func (p *Plan) Path() string {
	return p.path
}

// Columns returns the output columns with their inferred types.
func (p *Plan) Columns() []Column {
	return slices.Clone(p.columns)
}

// Stream executes the plan and calls fn for each retained row, in input order.
// fn owns the row it receives. An error from fn stops the stream and is returned.
func (p *Plan) Stream(ctx context.Context, fn func(Row) error) error {
	_, err := p.stream(ctx, fn)
	return err
}

// Materialize executes the plan into a freshly allocated Frame.
func (p *Plan) Materialize(ctx context.Context) (*Frame, error) {
	frame := &Frame{Columns: p.Columns()}
	err := p.Stream(ctx, func(row Row) error {
		frame.Rows = append(frame.Rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// stream runs a reader goroutine that parses chunks and a filter goroutine
// that coerces, filters and hands rows to fn. It returns the number of input
// rows read.
func (p *Plan) stream(ctx context.Context, fn func(Row) error) (int64, error) {
	logger := logging.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan *Chunk, chunkQueue)

	g.Go(func() error {
		defer close(chunks)

		f, size, err := openInput(p.path)
		if err != nil {
			return err
		}
		defer f.Close()

		cr, err := NewChunkReader(f, ReaderOptions{ChunkBytes: p.chunkBytes, TotalBytes: size})
		if err != nil {
			return err
		}
		if !slices.Equal(cr.Header(), p.header) {
			return &FormatError{Line: 1, Err: errors.New("input header changed since the plan was built")}
		}

		progress := rate.Sometimes{Interval: ProgressInterval}
		for {
			chunk, err := cr.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			select {
			case chunks <- chunk:
			case <-gctx.Done():
				return gctx.Err()
			}

			progress.Do(func() {
				logger.Info("reading input",
					"bytes_read", cr.BytesRead(),
					"progress_pct", cr.Progress(),
				)
			})
		}
	})

	var rowsRead int64
	g.Go(func() error {
		for chunk := range chunks {
			for i, rec := range chunk.Records {
				if i%ContextCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				rowsRead++

				row, err := p.coerce(rec, chunk.Lines[i])
				if err != nil {
					return err
				}
				if !p.predicate.Match(row) {
					continue
				}
				p.predicate.Normalize(row)
				if err := fn(row); err != nil {
					return err
				}
			}
		}
		return nil
	})

	err := g.Wait()
	return rowsRead, err
}

// coerce projects rec onto the plan's columns and converts each cell to its
// column type. Fields past the end of a short record are null.
func (p *Plan) coerce(rec []string, line int) (Row, error) {
	row := make(Row, len(p.indexes))
	for i, idx := range p.indexes {
		var raw string
		if idx < len(rec) {
			raw = rec[idx]
		}

		col := p.columns[i]
		cell, ok := ToCell(raw, col.Type)
		if !ok {
			return nil, &CoercionError{Line: line, Column: col.Name, Value: raw, Type: col.Type}
		}
		row[i] = cell
	}
	return row, nil
}

