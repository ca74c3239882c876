package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Typed wrappers below carry
// detail; callers branch with errors.Is against these sentinels.
var (
	// ErrConfig indicates a misconfiguration (unknown model/profile).
	// Always fatal to the caller; never retried.
	ErrConfig = errors.New("configuration error")

	// ErrPlanning indicates the artefact alone exceeds the context budget.
	// Fatal and surfaced to the author, never silently truncated.
	ErrPlanning = errors.New("planning error")

	// ErrConflict indicates a concurrent run on the same artefact. The
	// caller must retry later; the orchestrator never queues.
	ErrConflict = errors.New("agent already running for this artefact")

	// ErrTransient indicates a timeout or upstream 5xx from the LLM
	// backend. Retried with bounded backoff inside a pass.
	ErrTransient = errors.New("transient backend error")

	// ErrParse indicates malformed LLM output; counted as a pass failure,
	// retried once, then the run fails.
	ErrParse = errors.New("malformed model output")

	// ErrRunFailed is the terminal state after exhausting retries. Partial
	// logs are retained; no version is committed.
	ErrRunFailed = errors.New("agent run failed")

	// ErrNotFound is returned by store lookups for missing rows.
	ErrNotFound = errors.New("not found")
)

// ConfigError reports an unknown model or profile.
type ConfigError struct {
	ModelID string
	Detail  string
}

func (e *ConfigError) Error() string {
	if e.ModelID != "" {
		return fmt.Sprintf("configuration error: unknown model %q: %s", e.ModelID, e.Detail)
	}
	return fmt.Sprintf("configuration error: %s", e.Detail)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// PlanningError reports that the artefact content cannot fit the budget.
type PlanningError struct {
	ModelID        string
	ArtefactTokens int
	Budget         int
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning error: artefact (%d tokens) exceeds context budget (%d tokens) for model %s",
		e.ArtefactTokens, e.Budget, e.ModelID)
}

func (e *PlanningError) Is(target error) bool { return target == ErrPlanning }

// ConflictError reports a second run request against a busy artefact.
type ConflictError struct {
	ArtefactID string
	ActiveRun  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: agent run %s already running for artefact %s", e.ActiveRun, e.ArtefactID)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransientError wraps a retryable backend failure.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error        { return e.Err }
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// ParseError wraps malformed LLM output detected while updating the draft.
type ParseError struct {
	Pass   string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in pass %s: %s", e.Pass, e.Detail)
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// RunFailedError is the terminal run failure carrying the root cause.
type RunFailedError struct {
	RunID string
	Pass  string
	Err   error
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s failed at pass %s: %v", e.RunID, e.Pass, e.Err)
}

func (e *RunFailedError) Unwrap() error        { return e.Err }
func (e *RunFailedError) Is(target error) bool { return target == ErrRunFailed }
