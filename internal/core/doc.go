// Package core implements the product filter pipeline.
//
// It reads a large tab-separated Open Food Facts export, keeps the rows whose
// category and country are in configured sets and whose product name and
// nutrition grade are present, lowercases the grade, and writes the projected
// columns to a new file.
//
// # Two phases
//
// [Loader.LoadAndFilter] opens the input, checks the header, infers column
// types from a sample and returns a [Plan]. Nothing else is read yet.
// [WriteOutput] (or [Plan.Stream] and [Plan.Materialize]) executes the plan:
//
//  1. A reader goroutine parses the input in chunks of about 25MB
//  2. A filter goroutine coerces each projected cell, applies the predicate
//     and lowercases the nutrition grade
//  3. Retained rows go to the output writer in input order
//
// Because the whole input is only read in the second phase, a value that
// does not fit its column type is reported by WriteOutput, not by LoadAndFilter.
//
// # Types
//
// Columns in [DefaultDtypeOverrides] are always text. Other projected columns
// are int, float, bool or text depending on the sample; see [InferTypes].
//
// # Runs
//
// [Service] wraps the two phases into runs with an ID, an optional Postgres
// load and object-store publish, a concurrency limit ([RunLimiter]) and an
// in-memory history. Serve mode starts runs from HTTP, cron and file-watch
// triggers.
//
// # Error Handling
//
// Typed errors ([FormatError], [EncodingError], [CoercionError], [OutputError])
// carry the technical detail. [MapError] turns any error into a user message
// with a code, such as FILE001 for a missing input or TYPE001 for a coercion
// failure.
package core
