// Command csvcombine merges delimited tables with differing column sets into
// one table.
//
// Usage:
//
//	csvcombine [flags] FILE...     combine FILEs into -o OUTPUT
//	csvcombine serve [flags]       serve the combine API over HTTP
//	csvcombine history [flags]     list recent runs
//
// Defaults come from the environment (optionally seeded from ./.env); see
// internal/config for the variable names.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/csvcombine/internal/config"
	"github.com/JonMunkholm/csvcombine/internal/core"
	"github.com/JonMunkholm/csvcombine/internal/history"
	"github.com/JonMunkholm/csvcombine/internal/logging"
)

const licenseText = `csvcombine is dual-licensed under:
  - Apache License 2.0 (LICENSE-APACHE.txt)
  - MIT License (LICENSE-MIT.txt)

See the respective license files for full terms.
Third-party dependencies are listed in THIRD-PARTY-LICENSES.txt
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one invocation and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if wantsLicense(args) {
		fmt.Fprint(stdout, licenseText)
		return 0
	}

	// Variables already in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "Error: load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	if len(args) > 0 {
		switch args[0] {
		case "serve":
			return runServe(args[1:], cfg, stdout, stderr)
		case "history":
			return runHistory(args[1:], cfg, stdout, stderr)
		}
	}
	return runCombine(args, cfg, stdout, stderr)
}

// wantsLicense reports whether --license appears before any "--". It is
// checked ahead of configuration so a broken environment cannot block it.
func wantsLicense(args []string) bool {
	for _, a := range args {
		switch a {
		case "--":
			return false
		case "-license", "--license", "-license=true", "--license=true":
			return true
		}
	}
	return false
}

// printError writes the error line, followed by a hint when the error has a
// known cause.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if core.IsUserFacing(err) {
		fmt.Fprintf(w, "  %s\n", core.FormatUserError(err))
	}
}

// openHistory opens the configured run history. A store that cannot be
// opened is replaced by history.Nop so the command still runs.
func openHistory(ctx context.Context, cfg *config.Config) history.Store {
	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		slog.Warn("run history disabled", "driver", cfg.History.Driver, "error", err)
		return history.Nop{}
	}
	return store
}
