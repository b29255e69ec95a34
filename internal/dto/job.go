package dto

import (
	"encoding/json"
	"time"
)

type EnqueueRequest struct {
	Type     string          `json:"type" validate:"required"`
	Args     json.RawMessage `json:"args,omitempty"`
	RunAt    *time.Time      `json:"run_at,omitempty"`
	Priority *int            `json:"priority,omitempty" validate:"omitempty,gte=0,lte=32767"`
}

type JobResponse struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Args       json.RawMessage `json:"args"`
	RunAt      time.Time       `json:"run_at"`
	Priority   int             `json:"priority"`
	ErrorCount int             `json:"error_count"`
	LastError  string          `json:"last_error,omitempty"`
}

type StatsResponse struct {
	Pending int64 `json:"pending"`
}
