package core

// combine.go implements the combining run.
//
// A run makes two passes over the sources, strictly in the order given:
//  1. Schema discovery reads each header and builds the unified layout.
//  2. The row pass reopens each source, skips its header and remaps every
//     data record into the unified layout, then applies the duplicate policy.
//
// Order is part of the contract: it decides which row is "first" for
// PolicyRemoveDuplicates, which value is "first non-empty" for
// PolicyMergeDuplicates, and the output order for PolicyKeepAll. A run is
// therefore sequential; nothing here is safe for concurrent use.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/csvcombine/internal/logging"
	"github.com/JonMunkholm/csvcombine/internal/record"
)

// ContextCheckInterval is how often (in rows) the row pass checks for
// cancellation.
var ContextCheckInterval = 1000

// Combine writes the unified table for opts.Sources to sink.
//
// The header is written first. Under PolicyKeepAll and
// PolicyRemoveDuplicates rows are written as they are read; under
// PolicyMergeDuplicates every distinct key tuple is held in memory and
// written after the last source, in first-seen order.
//
// Any open, read or write failure aborts the run. Output already written to
// sink is not rolled back.
func Combine(ctx context.Context, opts Options, sink io.Writer) (*Result, error) {
	start := time.Now()
	opts = opts.withDefaults()

	schema, err := DiscoverSchema(ctx, opts)
	if err != nil {
		return nil, err
	}
	return run(ctx, opts, schema, sink, start)
}

// CombineFiles combines the given input files into output, creating or
// truncating it. The output file is only created once every input header
// has been read, so a bad input leaves an existing output untouched.
func CombineFiles(ctx context.Context, inputs []string, output string, opts Options) (res *Result, err error) {
	start := time.Now()
	if err := checkOutput(inputs, output); err != nil {
		return nil, err
	}
	opts.Sources = FileSources(inputs)
	opts = opts.withDefaults()

	schema, err := DiscoverSchema(ctx, opts)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(output)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
			res = nil
		}
	}()

	return run(ctx, opts, schema, f, start)
}

// checkOutput rejects an output path that resolves to one of the inputs.
func checkOutput(inputs []string, output string) error {
	out, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("resolve output: %w", err)
	}
	outInfo, statErr := os.Stat(out)
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", in, err)
		}
		if abs == out {
			return fmt.Errorf("%w: %s", ErrOutputIsInput, output)
		}
		if statErr != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && os.SameFile(info, outInfo) {
			return fmt.Errorf("%w: %s", ErrOutputIsInput, output)
		}
	}
	return nil
}

func run(ctx context.Context, opts Options, schema *Schema, sink io.Writer, start time.Time) (*Result, error) {
	logger := logging.FromContext(ctx)

	w := record.NewWriter(sink, opts.Delimiter)
	if err := w.Write(schema.Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	rc := &reconciler{
		opts:   opts,
		schema: schema,
		out:    w,
		result: &Result{
			Header: schema.Header,
			Files:  len(opts.Sources),
		},
	}
	switch opts.Policy {
	case PolicyRemoveDuplicates:
		rc.seen = make(seenKeys)
	case PolicyMergeDuplicates:
		rc.merged = newMergeBuffer(opts.EmptyValue)
	}

	for i, src := range opts.Sources {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("combine cancelled: %w", err)
		}
		if err := rc.ingest(ctx, src, schema.IndexMaps[i]); err != nil {
			return nil, err
		}
	}

	switch {
	case rc.seen != nil:
		rc.result.DistinctKeys = len(rc.seen)
	case rc.merged != nil:
		rc.result.DistinctKeys = rc.merged.len()
	}

	if rc.merged != nil {
		err := rc.merged.each(func(row []string) error {
			rc.result.RowsWritten++
			return w.Write(row)
		})
		if err != nil {
			return nil, fmt.Errorf("write output: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}

	rc.result.Duration = time.Since(start)
	logger.Info("combine complete",
		"files", rc.result.Files,
		"columns", len(schema.Header),
		"keys", len(schema.Keys),
		"policy", opts.Policy.String(),
		"rows_read", rc.result.RowsRead,
		"rows_written", rc.result.RowsWritten,
		"duplicates", rc.result.Duplicates,
		"merged", rc.result.Merged,
		"distinct_keys", rc.result.DistinctKeys,
		"duration_ms", rc.result.Duration.Milliseconds(),
	)
	return rc.result, nil
}

// reconciler holds the mutable state of one row pass.
type reconciler struct {
	opts   Options
	schema *Schema
	out    *record.Writer
	result *Result

	seen   seenKeys     // PolicyRemoveDuplicates only
	merged *mergeBuffer // PolicyMergeDuplicates only
}

// ingest streams one source's data records through the policy.
func (rc *reconciler) ingest(ctx context.Context, src Source, indexMap []int) error {
	logger := logging.FromContext(ctx).With("source", src.Name())
	started := time.Now()

	f, err := src.Open()
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	counter := wrapSource(f, rc.opts.StripBOM)
	s := record.NewScanner(counter,
		record.WithDelimiter(rc.opts.Delimiter),
		record.WithLineEnding(rc.opts.LineEnding),
	)

	// header shape was captured during discovery
	if _, err := s.Next(); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("read header of %s: %w (empty file)", src.Name(), record.ErrUnexpectedEOF)
		}
		return fmt.Errorf("read header of %s: %w", src.Name(), err)
	}

	keyLen := len(rc.schema.Keys)
	width := len(rc.schema.Header)
	rows := 0

	for {
		fields, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", src.Name(), err)
		}

		rows++
		if rows%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("combine cancelled at %s line %d: %w", src.Name(), s.Line(), err)
			}
		}

		row := make([]string, width)
		for i := range row {
			row[i] = rc.opts.EmptyValue
		}
		for i, field := range fields {
			if i >= len(indexMap) {
				rc.result.Overflow++
				logger.Debug("row has more fields than header",
					"line", s.Line(),
					"fields", len(fields),
					"header_fields", len(indexMap),
				)
				break
			}
			row[indexMap[i]] = field
		}

		if err := rc.apply(row, keyLen); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	rc.result.RowsRead += rows
	rc.result.BytesRead += counter.n
	logger.Debug("source ingested",
		"rows", rows,
		"bytes", counter.n,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// apply runs one remapped row through the duplicate policy.
func (rc *reconciler) apply(row []string, keyLen int) error {
	switch rc.opts.Policy {
	case PolicyRemoveDuplicates:
		if !rc.seen.add(row[:keyLen]) {
			rc.result.Duplicates++
			return nil
		}
	case PolicyMergeDuplicates:
		if rc.merged.add(row, keyLen) {
			rc.result.Merged++
		}
		return nil
	}

	rc.result.RowsWritten++
	return rc.out.Write(row)
}
