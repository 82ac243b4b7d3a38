package metrics

import "time"

// StageResult captures one pipeline stage's wall-clock duration and outcome.
type StageResult struct {
	Duration time.Duration
	Success  bool
}

// StageRecorder accumulates per-stage timings for a single batch run. It is
// owned by one batch's call stack and is not safe for concurrent use.
type StageRecorder struct {
	timings map[string]StageResult

	// now is injectable for tests; defaults to a monotonic clock read.
	now func() time.Time
}

// NewStageRecorder returns an empty recorder.
func NewStageRecorder() *StageRecorder {
	return &StageRecorder{
		timings: make(map[string]StageResult),
		now:     time.Now,
	}
}

// Run executes fn and records its elapsed time under stage. On failure the
// same elapsed time is recorded with Success=false and the error is
// returned unchanged, so failure attribution survives propagation.
func (r *StageRecorder) Run(stage string, fn func() error) error {
	start := r.now()
	err := fn()
	elapsed := r.now().Sub(start)

	r.timings[stage] = StageResult{Duration: elapsed, Success: err == nil}
	return err
}

// Has reports whether a timing entry exists for stage.
func (r *StageRecorder) Has(stage string) bool {
	_, ok := r.timings[stage]
	return ok
}

// Get returns the recorded result for stage.
func (r *StageRecorder) Get(stage string) (StageResult, bool) {
	res, ok := r.timings[stage]
	return res, ok
}

// Seconds returns the recorded duration for stage in seconds, or 0 when the
// stage never ran.
func (r *StageRecorder) Seconds(stage string) float64 {
	return r.timings[stage].Duration.Seconds()
}

// Timings returns the underlying stage map.
func (r *StageRecorder) Timings() map[string]StageResult {
	return r.timings
}

// FailedStage returns the name of the first recorded stage with
// Success=false, checked in the given order, or "" when none failed.
func (r *StageRecorder) FailedStage(order []string) string {
	for _, stage := range order {
		if res, ok := r.timings[stage]; ok && !res.Success {
			return stage
		}
	}
	return ""
}
