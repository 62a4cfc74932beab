package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/csvcombine/internal/config"
	"github.com/JonMunkholm/csvcombine/internal/core"
	"github.com/JonMunkholm/csvcombine/internal/history"
	"github.com/JonMunkholm/csvcombine/internal/logging"
	"github.com/JonMunkholm/csvcombine/internal/watch"
)

const combineUsage = `Usage: csvcombine [flags] FILE...

Combine delimited files with differing columns into one file. Flags and
files may be given in any order.

Flags:
  -o, --output FILE          output file (required)
  -d, --delimiter CHAR       field delimiter (default %q)
  -k, --keys COLS            comma-separated key columns (default: every
                             column of the first file)
  -r, --remove-duplicates    keep only the first row per key
  -m, --merge-duplicates     merge rows sharing a key, filling empty cells
  -e, --empty-value TEXT     placeholder for missing cells (default %q)
      --line-ending NAME     line break inside multiline fields: native,
                             lf or crlf (default %q)
      --strip-bom            drop a leading UTF-8 byte-order mark
      --watch                combine again whenever an input changes
      --license              print license information and exit

Commands:
  serve                      serve the combine API over HTTP
  history                    list recent runs
`

// combineFlags are the command-line settings of a combine invocation.
type combineFlags struct {
	output     string
	delimiter  string
	keys       string
	remove     bool
	merge      bool
	empty      string
	lineEnding string
	stripBOM   bool
	watch      bool
	license    bool
}

// newCombineFlagSet registers every flag under its short and long name,
// with defaults taken from the environment configuration.
func newCombineFlagSet(cc config.CombineConfig, f *combineFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("csvcombine", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	for _, name := range []string{"o", "output"} {
		fs.StringVar(&f.output, name, "", "output file")
	}
	for _, name := range []string{"d", "delimiter"} {
		fs.StringVar(&f.delimiter, name, cc.Delimiter, "field delimiter")
	}
	for _, name := range []string{"k", "keys"} {
		fs.StringVar(&f.keys, name, strings.Join(cc.Keys, ","), "key columns")
	}
	for _, name := range []string{"r", "remove-duplicates"} {
		fs.BoolVar(&f.remove, name, cc.RemoveDuplicates, "remove duplicates")
	}
	for _, name := range []string{"m", "merge-duplicates"} {
		fs.BoolVar(&f.merge, name, cc.MergeDuplicates, "merge duplicates")
	}
	for _, name := range []string{"e", "empty-value"} {
		fs.StringVar(&f.empty, name, cc.EmptyValue, "empty value")
	}
	fs.StringVar(&f.lineEnding, "line-ending", cc.LineEnding, "line ending")
	fs.BoolVar(&f.stripBOM, "strip-bom", cc.StripBOM, "strip BOM")
	fs.BoolVar(&f.watch, "watch", false, "watch inputs")
	fs.BoolVar(&f.license, "license", false, "print license")
	return fs
}

// parseInterleaved parses flags that may appear between positional
// arguments. Everything after "--" is positional.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(positional, rest...), nil
		}
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func runCombine(args []string, cfg *config.Config, stdout, stderr io.Writer) int {
	var f combineFlags
	fs := newCombineFlagSet(cfg.Combine, &f)

	inputs, err := parseInterleaved(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(stdout, combineUsage, cfg.Combine.Delimiter, cfg.Combine.EmptyValue, cfg.Combine.LineEnding)
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintln(stderr, "Run 'csvcombine -h' for usage.")
		return 1
	}

	if f.remove && f.merge {
		fmt.Fprintf(stderr, "Error: %v\n", core.ErrConflictingPolicies)
		return 1
	}

	cfg.Combine.Delimiter = f.delimiter
	cfg.Combine.Keys = config.ParseKeys(f.keys)
	cfg.Combine.RemoveDuplicates = f.remove
	cfg.Combine.MergeDuplicates = f.merge
	cfg.Combine.EmptyValue = f.empty
	cfg.Combine.LineEnding = f.lineEnding
	cfg.Combine.StripBOM = f.stripBOM
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if f.output == "" {
		fmt.Fprintln(stderr, "Error: an output file is required (-o/--output)")
		return 1
	}
	if len(inputs) == 0 {
		printError(stderr, core.ErrNoInputs)
		return 1
	}

	ctx := context.Background()
	store := openHistory(ctx, cfg)
	defer store.Close()

	c := &combiner{cfg: cfg, store: store, inputs: inputs, output: f.output, stdout: stdout}

	if f.watch {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		c.origin = history.OriginWatch
		if err := watch.Run(ctx, inputs, cfg.Watch.Debounce, c.combine); err != nil {
			printError(stderr, err)
			return 1
		}
		return 0
	}

	c.origin = history.OriginCLI
	if err := c.combine(ctx); err != nil {
		printError(stderr, err)
		return 1
	}
	return 0
}

// combiner runs one file-to-file combine and records it in history.
type combiner struct {
	cfg    *config.Config
	store  history.Store
	origin string
	inputs []string
	output string
	stdout io.Writer
}

func (c *combiner) combine(ctx context.Context) error {
	opts, err := c.cfg.Combine.Options(core.FileSources(c.inputs))
	if err != nil {
		return err
	}

	run := history.NewRun(c.origin, opts, c.output)
	ctx = logging.WithRunID(ctx, run.ID)

	res, err := core.CombineFiles(ctx, c.inputs, c.output, opts)
	run.Complete(res, err)
	history.Save(ctx, c.store, run, c.cfg.History.Timeout)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "Successfully combined %d files into %s\n", res.Files, c.output)
	return nil
}
