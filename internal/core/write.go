package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/nutriclean/internal/logging"
	"github.com/JonMunkholm/nutriclean/internal/output"
)

// DefaultOutputPath is the output file used when none is given.
const DefaultOutputPath = "db_file.csv"

// WriteResult summarizes a completed WriteOutput.
type WriteResult struct {
	Path        string        `json:"path"`
	Format      output.Format `json:"format"`
	RowsRead    int64         `json:"rows_read"`
	RowsWritten int64         `json:"rows_written"`
	Duration    time.Duration `json:"duration"`
}

// OutputFields maps plan columns to output fields.
func OutputFields(columns []Column) []output.Field {
	fields := make([]output.Field, len(columns))
	for i, c := range columns {
		fields[i] = output.Field{Name: c.Name, Kind: outputKind(c.Type)}
	}
	return fields
}

func outputKind(t FieldType) output.Kind {
	switch t {
	case FieldInt:
		return output.KindInt
	case FieldFloat:
		return output.KindFloat
	case FieldBool:
		return output.KindBool
	default:
		return output.KindText
	}
}

// WriteOutput executes plan and writes the retained rows to outputPath.
//
// The file is written to a temporary name and moved into place only when every
// row has been written, so a failed run leaves any previous output untouched.
// An empty result still produces a file with the header and logs a warning.
// Coercion errors found while reading the rest of the input surface here.
func WriteOutput(ctx context.Context, plan *Plan, outputPath string, format output.Format) (*WriteResult, error) {
	start := time.Now()
	logger := logging.FromContext(ctx)

	if outputPath == "" {
		outputPath = DefaultOutputPath
	}
	if format == "" {
		format = output.FormatCSV
	}

	w, err := output.NewWriter(format, outputPath)
	if err != nil {
		return nil, err
	}
	if err := w.Begin(OutputFields(plan.columns)); err != nil {
		return nil, &OutputError{Path: outputPath, Err: err}
	}

	var written int64
	rowsRead, err := plan.stream(ctx, func(row Row) error {
		if err := w.Write(row); err != nil {
			return &OutputError{Path: outputPath, Err: err}
		}
		written++
		return nil
	})
	if err != nil {
		w.Abort()
		return nil, err
	}

	if err := w.Commit(); err != nil {
		return nil, &OutputError{Path: outputPath, Err: err}
	}

	if written == 0 {
		logger.Warn("no rows matched filter", "input", plan.path, "rows_read", rowsRead)
	}

	result := &WriteResult{
		Path:        outputPath,
		Format:      format,
		RowsRead:    rowsRead,
		RowsWritten: written,
		Duration:    time.Since(start),
	}
	logger.Info("output written",
		"path", outputPath,
		"format", format,
		"rows_read", rowsRead,
		"rows_written", written,
		"elapsed", result.Duration.String(),
	)
	return result, nil
}
