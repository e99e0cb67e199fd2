package domain

import "time"

// ActionResult is the terminal outcome of one action instance.
type ActionResult struct {
	Step     int       `json:"step"`
	Action   string    `json:"action"`
	Status   Status    `json:"status"`
	Attempts int       `json:"attempts"`
	Output   any       `json:"output,omitempty"`
	Err      error     `json:"-"`
	Started  time.Time `json:"started,omitempty"`
	Finished time.Time `json:"finished,omitempty"`

	// Effects are the deltas applied to the world state (declared plus accepted hints).
	Effects Effects `json:"effects,omitempty"`
}

// Succeeded is a shorthand for Status == StatusSucceeded.
func (r ActionResult) Succeeded() bool { return r.Status == StatusSucceeded }

// Error returns the failure message, or "" when the action did not fail.
func (r ActionResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ExecutionResult is returned by a plan run, successful or not.
type ExecutionResult struct {
	RunID      string         `json:"run_id"`
	PlanID     string         `json:"plan_id"`
	FinalState WorldState     `json:"final_state"`
	Results    []ActionResult `json:"results"`
	Events     []LogEvent     `json:"events"`
	Completed  int            `json:"completed"`
	Total      int            `json:"total"`
}

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay" yaml:"max_delay" mapstructure:"max_delay"`
	Multiplier float64       `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier"`
}

// DefaultRetryPolicy allows two retries with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
	}
}

// Backoff returns the delay before the given retry (1-based).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < retry; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Snapshot is a persisted world state for one project/session.
type Snapshot struct {
	SessionID string     `json:"session_id"`
	Version   int        `json:"version"`
	State     WorldState `json:"state"`
	RunID     string     `json:"run_id,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Sealed holds an opaque encrypted payload when a store middleware hides State.
	Sealed string `json:"sealed,omitempty"`
}

// NewSnapshot creates version 1 of a session snapshot.
func NewSnapshot(sessionID string, state WorldState) *Snapshot {
	return &Snapshot{
		SessionID: sessionID,
		Version:   1,
		State:     state,
		UpdatedAt: time.Now().UTC(),
	}
}

// Next returns the snapshot that follows this one with the given state.
func (s *Snapshot) Next(state WorldState, runID string) *Snapshot {
	return &Snapshot{
		SessionID: s.SessionID,
		Version:   s.Version + 1,
		State:     state,
		RunID:     runID,
		UpdatedAt: time.Now().UTC(),
	}
}
