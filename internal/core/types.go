package core

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// FieldType is the representation a column is coerced to on read.
type FieldType int

const (
	FieldText FieldType = iota
	FieldInt
	FieldFloat
	FieldBool
)

// String returns the type name used in error messages.
func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "int64"
	case FieldFloat:
		return "float64"
	case FieldBool:
		return "bool"
	default:
		return "text"
	}
}

// Column is one projected output column.
type Column struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Row holds one record's projected cells in column order.
// A cell with Valid=false is null.
type Row []pgtype.Text

// Frame is a fully materialized filter result.
type Frame struct {
	Columns []Column
	Rows    []Row
}

// ColumnNames returns the frame's column names in order.
func (f *Frame) ColumnNames() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// Chunk is a run of raw input records returned by ChunkReader.Next.
type Chunk struct {
	Records [][]string
	Lines   []int // 1-based input line where each record starts
	Offset  int64 // input offset just past the last record
}

// Len returns the number of records in the chunk.
func (c *Chunk) Len() int {
	return len(c.Records)
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)
