package record

import "time"

// RunStatus is the lifecycle state of a run, derived from two independent
// facts: whether the run finished, and its exit code. The enumeration is
// never stored; collaborators reconstruct it from the raw facts, so the
// mapping here must stay deterministic in both directions.
type RunStatus int

const (
	// StatusWIP means the run has not finished.
	StatusWIP RunStatus = iota
	// StatusCompleted means the run finished with exit code 0.
	StatusCompleted
	// StatusFailed means the run finished with a known non-zero exit code.
	StatusFailed
	// StatusMaybeFailed means the run finished but the exit code is unknown,
	// e.g. the process disappeared without an explicit finish call.
	StatusMaybeFailed
)

// String returns a human-readable representation of the RunStatus.
func (s RunStatus) String() string {
	switch s {
	case StatusWIP:
		return "wip"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusMaybeFailed:
		return "maybe_failed"
	default:
		return "unknown"
	}
}

// StatusFromRunState derives the status from (isFinished, exitCode).
// A nil exitCode means the code is unknown.
func StatusFromRunState(isFinished bool, exitCode *int) RunStatus {
	if !isFinished {
		return StatusWIP
	}
	if exitCode == nil {
		return StatusMaybeFailed
	}
	if *exitCode == 0 {
		return StatusCompleted
	}
	return StatusFailed
}

// RunState materializes the status back into (isFinished, exitCode).
// StatusFailed canonicalizes to exit code 1 when a concrete code is
// required; StatusWIP and StatusMaybeFailed carry no code.
func (s RunStatus) RunState() (isFinished bool, exitCode *int) {
	switch s {
	case StatusWIP:
		return false, nil
	case StatusCompleted:
		code := 0
		return true, &code
	case StatusFailed:
		code := 1
		return true, &code
	case StatusMaybeFailed:
		return true, nil
	default:
		return false, nil
	}
}

// Status is a side-channel record marking a run lifecycle transition. It is
// not part of the metric table; it is written once at run completion, and
// its absence means the run is still in progress.
type Status struct {
	Run        string    `json:"run"`
	Project    string    `json:"project"`
	Status     string    `json:"status"`
	IsFinished bool      `json:"is_finished"`
	ExitCode   *int      `json:"exit_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewStatus builds a Status record from the raw lifecycle facts.
func NewStatus(project, run string, isFinished bool, exitCode *int) *Status {
	var code *int
	if exitCode != nil {
		c := *exitCode
		code = &c
	}
	return &Status{
		Run:        run,
		Project:    project,
		Status:     StatusFromRunState(isFinished, exitCode).String(),
		IsFinished: isFinished,
		ExitCode:   code,
		Timestamp:  time.Now().UTC(),
	}
}

// RunStatus derives the enumeration from the record's raw facts. The stored
// status string is informational only and is never treated as authoritative.
func (s *Status) RunStatus() RunStatus {
	return StatusFromRunState(s.IsFinished, s.ExitCode)
}
