package domain

import "time"

// RunStatus is the state of a pipeline run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// RunCounts are the per-run counters reported in the summary.
type RunCounts struct {
	Processed int `json:"processed"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	TimedOut  int `json:"timed_out"`
	Banners   int `json:"banners"`
	Deployed  int `json:"deployed"`
	Failed    int `json:"failed"`
}

// PipelineRun is one batch execution of the pipeline.
type PipelineRun struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	RunCounts
	Failures []string `json:"failures,omitempty"`
	Error    string   `json:"error,omitempty"`
}
