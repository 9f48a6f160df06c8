package api

import (
	"time"

	"github.com/mattjoyce/portmark/internal/runlog"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Cycle         int    `json:"cycle"`
	Queued        int    `json:"queued"`
	Halted        bool   `json:"halted"`
}

// PlanResponse describes the job being printed and what is left of it.
type PlanResponse struct {
	Carton  string   `json:"carton"`
	Side    string   `json:"side"`
	Tasks   []string `json:"tasks"`
	Pending []string `json:"pending"`
}

// RecoveryRequest is the JSON body for POST /recovery.
type RecoveryRequest struct {
	Decision string `json:"decision"`
}

// RecoveryResponse confirms a decision reached the engine.
type RecoveryResponse struct {
	Decision string `json:"decision"`
}

// RunResponse is one run history row.
type RunResponse struct {
	ID          string     `json:"id"`
	Controller  string     `json:"controller"`
	Carton      string     `json:"carton"`
	Side        string     `json:"side"`
	Status      string     `json:"status"`
	Tasks       int        `json:"tasks"`
	Cycles      int        `json:"cycles"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
}

func runResponse(r runlog.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		Controller:  r.Controller,
		Carton:      r.Carton,
		Side:        r.Side,
		Status:      string(r.Status),
		Tasks:       r.Tasks,
		Cycles:      r.Cycles,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		LastError:   r.LastError,
	}
}
