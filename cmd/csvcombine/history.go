package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/csvcombine/internal/config"
	"github.com/JonMunkholm/csvcombine/internal/history"
)

// runHistory prints recent runs, newest first.
func runHistory(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("n", history.DefaultLimit, "number of runs to show")
	asJSON := fs.Bool("json", false, "print runs as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.History.Timeout)
	defer cancel()

	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		printError(stderr, err)
		return 1
	}
	defer store.Close()

	runs, err := store.Recent(ctx, *limit)
	if err != nil {
		printError(stderr, fmt.Errorf("list runs: %w", err))
		return 1
	}

	if *asJSON {
		if runs == nil {
			runs = []history.Run{}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(runs); err != nil {
			printError(stderr, err)
			return 1
		}
		return 0
	}

	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded.")
		return 0
	}
	writeRunTable(stdout, runs)
	return 0
}

func writeRunTable(w io.Writer, runs []history.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tORIGIN\tPOLICY\tFILES\tROWS\tDUPS\tMERGED\tOUTPUT\tSTATUS")
	for _, r := range runs {
		status := "ok"
		if !r.Succeeded() {
			status = "error: " + firstLine(r.Error)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Origin,
			r.Policy,
			len(r.Inputs),
			r.RowsWritten,
			r.Duplicates,
			r.Merged,
			orDash(r.Output),
			status,
		)
	}
	tw.Flush()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
