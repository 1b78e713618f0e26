package cli

import (
	"errors"

	"github.com/stanzahq/stanza/internal/models"
)

// Process exit codes, one per error kind.
const (
	ExitFailure      = 1
	ExitInvalid      = 2
	ExitUnauthorized = 3
	ExitNotFound     = 4
	ExitConflict     = 5
	ExitUnavailable  = 6
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, models.ErrValidation):
		return ExitInvalid
	case errors.Is(err, models.ErrAuthorization):
		return ExitUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, models.ErrConflict):
		return ExitConflict
	case errors.Is(err, models.ErrTransport):
		return ExitUnavailable
	}
	return ExitFailure
}
