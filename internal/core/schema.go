package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/csvcombine/internal/record"
)

// DiscoverSchema reads the header of every source, in order, and builds the
// unified output layout.
//
// The unified header starts with the key columns. Each source's columns are
// then visited in header order: a name already present maps to its existing
// position, a new name is appended. Column names compare exactly.
//
// With no explicit keys, the first source's header is the key list. A name
// repeated in that header is kept once, at its first position.
func DiscoverSchema(ctx context.Context, opts Options) (*Schema, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	schema := &Schema{
		IndexMaps: make([][]int, 0, len(opts.Sources)),
	}
	positions := make(map[string]int)

	add := func(name string) int {
		if i, ok := positions[name]; ok {
			return i
		}
		positions[name] = len(schema.Header)
		schema.Header = append(schema.Header, name)
		return positions[name]
	}

	for i, src := range opts.Sources {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("schema discovery cancelled: %w", err)
		}

		header, err := readHeader(src, opts)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			keys := opts.Keys
			if keys == nil {
				keys = header
			}
			for _, k := range keys {
				add(k)
			}
			schema.Keys = append([]string(nil), schema.Header...)
		}

		indexMap := make([]int, len(header))
		for j, name := range header {
			indexMap[j] = add(name)
		}
		schema.IndexMaps = append(schema.IndexMaps, indexMap)
	}

	return schema, nil
}

// readHeader returns the first record of a source. An empty source has no
// header, which is an unexpected end of input.
func readHeader(src Source, opts Options) ([]string, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer rc.Close()

	s := record.NewScanner(wrapSource(rc, opts.StripBOM),
		record.WithDelimiter(opts.Delimiter),
		record.WithLineEnding(opts.LineEnding),
	)
	header, err := s.Next()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header of %s: %w (empty file)", src.Name(), record.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", src.Name(), err)
	}
	return header, nil
}
