package core

import "errors"

var (
	// ErrNoInputs is returned when a run has no sources. At least one is
	// needed to derive the default key columns.
	ErrNoInputs = errors.New("no input files provided")

	// ErrConflictingPolicies is returned when both remove-duplicates and
	// merge-duplicates are requested.
	ErrConflictingPolicies = errors.New("--remove-duplicates and --merge-duplicates cannot be used together")

	// ErrInvalidDelimiter is returned for a delimiter that cannot separate
	// fields (a quote or a line break).
	ErrInvalidDelimiter = errors.New("invalid delimiter")

	// ErrDuplicateKeyColumn is returned when an explicit key list names the
	// same column twice.
	ErrDuplicateKeyColumn = errors.New("duplicate key column")

	// ErrUnknownPolicy is returned by ParsePolicy for an unrecognized name.
	ErrUnknownPolicy = errors.New("unknown duplicate policy")

	// ErrOutputIsInput is returned by CombineFiles when the output path
	// names one of the inputs. Creating the output would truncate that input
	// before the row pass reads it.
	ErrOutputIsInput = errors.New("output file is also an input")
)
