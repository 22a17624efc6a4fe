package transcribe

import "fmt"

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// InputError reports missing or unusable source audio. It is fatal to the
// job: the orchestrator does not advance to another backend candidate.
type InputError struct {
	Path    string
	Message string
	Err     error
}

// Error formats the input failure for logs and the job record.
func (e *InputError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Path)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *InputError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BackendError reports one failed transcription attempt with optional
// command context. The orchestrator advances to the next candidate, or
// surfaces the last BackendError when candidates are exhausted.
type BackendError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats backend failures for logs and the job record.
func (e *BackendError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *BackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
