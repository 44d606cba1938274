package model

import "time"

// RunStatus is the lifecycle state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one execution of the analysis pipeline.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Parks      int        `json:"parks"`
	OutputPath string     `json:"output_path,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ParkScore is the persisted per-park result of a run.
type ParkScore struct {
	RunID        string  `json:"run_id"`
	ParkID       string  `json:"park_id"`
	Name         string  `json:"name"`
	Acres        float64 `json:"acres"`
	HeatMean     Float   `json:"heat_mean"`
	HeatHaz      Float   `json:"heat_haz"`
	CoastalHaz   float64 `json:"coastal_flood_haz"`
	StormHaz     float64 `json:"storm_flood_haz"`
	HeatVuln     float64 `json:"heat_vuln"`
	FloodVuln    float64 `json:"flood_vuln"`
	EstInvTotal  float64 `json:"est_inv_total"`
	InvNorm      float64 `json:"inv_norm"`
	HazardFactor Float   `json:"hazard_factor"`
	VulFactor    Float   `json:"vul_factor"`
	Suitability  Float   `json:"suitability"`
}
