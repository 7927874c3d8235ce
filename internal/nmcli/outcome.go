package nmcli

// Outcome classifies the result of an nmcli invocation. It is the only
// representation of nmcli exit codes the rest of the codebase is allowed to
// see.
type Outcome int

const (
	// Success means nmcli exited cleanly.
	Success Outcome = iota
	// TimedOut means the operation exceeded nmcli's own wait or our context deadline.
	TimedOut
	// ActivationFailed covers activation/deactivation failures and any exit
	// code we do not recognize; callers may retry.
	ActivationFailed
	// NotFound means the referenced connection, device, or access point does
	// not exist. Retrying cannot help.
	NotFound
	// NotRunning means NetworkManager itself is unreachable.
	NotRunning
)

// nmcli(1) exit codes.
const (
	codeSuccess        = 0
	codeTimeout        = 3
	codeActivationFail = 4
	codeNotRunning     = 8
	codeNotFound       = 10
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TimedOut:
		return "timed_out"
	case ActivationFailed:
		return "activation_failed"
	case NotFound:
		return "not_found"
	case NotRunning:
		return "not_running"
	default:
		return "unknown"
	}
}

// classify maps a raw nmcli exit code to an Outcome. Unknown codes are treated
// as a generic retryable failure.
func classify(code int) Outcome {
	switch code {
	case codeSuccess:
		return Success
	case codeTimeout:
		return TimedOut
	case codeNotRunning:
		return NotRunning
	case codeNotFound:
		return NotFound
	case codeActivationFail:
		return ActivationFailed
	default:
		return ActivationFailed
	}
}
