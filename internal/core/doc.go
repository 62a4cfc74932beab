// Package core provides the business logic for combining delimited tables.
//
// It is independent of any transport: the command-line tool, the HTTP
// server and the directory watcher all call the same entry points.
//
// # Combining
//
// A run takes an ordered list of [Source] values and writes one table whose
// header is the union of every input header:
//
//	res, err := core.CombineFiles(ctx, []string{"a.csv", "b.csv"}, "out.csv", core.Options{
//	    Keys:       []string{"id"},
//	    EmptyValue: "EMPTY",
//	    Policy:     core.PolicyMergeDuplicates,
//	})
//
// [DiscoverSchema] reads only the headers and builds the unified layout. Key
// columns come first, then each new column in first-appearance order. Every
// data row is remapped into that layout, cells a source does not supply get
// [Options.EmptyValue], and the row passes through the duplicate [Policy].
//
// # Duplicate Policies
//
//   - PolicyKeepAll: every row, in arrival order.
//   - PolicyRemoveDuplicates: first row per key tuple wins.
//   - PolicyMergeDuplicates: one row per key tuple; placeholder cells are
//     filled from later rows, written in first-seen order at the end.
//
// # Streaming
//
// Sources are read line by line and rows are written as they are produced,
// except under PolicyMergeDuplicates, which holds one row per distinct key
// tuple. Sources are opened twice (once per pass), so a [Source] must be
// re-openable.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. See
// error_messages.go for the code table (CFG, FILE, IO, REQ).
package core
