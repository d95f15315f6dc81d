package cli

import "fmt"

// ExitCodeError makes Execute's caller exit with Code without printing
// anything further.
type ExitCodeError struct {
	Code int
}

func NewExitCodeError(code int) *ExitCodeError {
	return &ExitCodeError{Code: code}
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitRejected is returned by validate when any command is rejected.
const ExitRejected = 2
