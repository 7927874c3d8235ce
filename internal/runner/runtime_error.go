package runner

import "fmt"

// Exit codes for fatal startup failures. An external supervisor is expected
// to restart the process.
const (
	ExitClean              = 0
	ExitPrivilege          = 1
	ExitManagerUnavailable = 2
	ExitHardwareMissing    = 3
	ExitConfigUnreadable   = 4
)

// StartupError is an unmet prerequisite that must terminate the process with
// a distinct exit code.
type StartupError struct {
	Code int
	Op   string
	Err  error
}

func (e *StartupError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// RuntimeError is a failure inside the running loop severe enough to
// terminate the process, such as state that can no longer be persisted.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
