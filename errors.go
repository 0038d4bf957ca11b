package ductor

import "fmt"

// ErrCLI reports a provider subprocess that exited non-zero (or timed
// out, or was signal-killed) — the transient-CLI-error / timeout /
// SIGKILL categories of the error taxonomy. Kind distinguishes them so
// callers can apply the documented one-shot recovery per category.
type ErrCLI struct {
	Provider string
	Kind     CLIErrorKind
	ExitCode int
	Message  string
}

// CLIErrorKind classifies why a provider subprocess call failed.
type CLIErrorKind string

const (
	CLIErrorTransient CLIErrorKind = "transient"
	CLIErrorTimeout   CLIErrorKind = "timeout"
	CLIErrorSIGKILL   CLIErrorKind = "sigkill"
)

func (e *ErrCLI) Error() string {
	return fmt.Sprintf("%s: %s (exit %d, %s)", e.Provider, e.Message, e.ExitCode, e.Kind)
}

// ErrResumeFailed marks an error produced on a resume-session request,
// triggering the orchestrator's single automatic fresh-session retry.
type ErrResumeFailed struct {
	Provider  string
	SessionID string
	Cause     error
}

func (e *ErrResumeFailed) Error() string {
	return fmt.Sprintf("resume failed for %s session %s: %v", e.Provider, e.SessionID, e.Cause)
}

func (e *ErrResumeFailed) Unwrap() error { return e.Cause }

// ErrValidation reports a parameter-resolver validation failure
// (unknown model, unsupported reasoning effort). Raised synchronously
// to the caller, never retried.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ErrConfiguration reports an unusable runtime configuration: no
// provider registered for a requested model, or no providers
// authenticated at all.
type ErrConfiguration struct {
	Message string
}

func (e *ErrConfiguration) Error() string {
	return "configuration: " + e.Message
}

// ErrAuth reports a webhook request that failed bearer/HMAC
// authentication. Surfaced as HTTP 401 and logged at warning.
type ErrAuth struct {
	HookID string
	Reason string
}

func (e *ErrAuth) Error() string {
	return fmt.Sprintf("auth failed for hook %s: %s", e.HookID, e.Reason)
}

// ErrAborted marks a flow that was cancelled by the user's /stop
// before it produced output. Callers suppress the result entirely
// rather than surfacing this as a user-facing error.
var ErrAborted = fmt.Errorf("operation aborted")
