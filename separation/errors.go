package separation

import (
	"errors"
	"fmt"
)

var (
	ErrSpawn          = errors.New("failed to spawn separation process")
	ErrNetwork        = errors.New("separation service unreachable")
	ErrPollTimeout    = errors.New("separation polling budget exhausted")
	ErrDownloadFailed = errors.New("failed to download any stem")
	ErrTooLarge       = errors.New("audio file exceeds the separation service size cap")
)

// ExitError is returned when the local separation tool exits non-zero.
// Stderr carries whatever the tool printed before dying.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("separation process exited with code %d: %s", e.Code, e.Stderr)
}
