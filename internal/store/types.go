package store

import (
	"time"

	"github.com/buckleypaul/fastcap/internal/camera"
)

// RunRecord captures the outcome of one capture run.
type RunRecord struct {
	ID        string                          `json:"id"`
	Dir       string                          `json:"dir"`
	Timestamp time.Time                       `json:"timestamp"`
	Duration  string                          `json:"duration"`
	Requested int                             `json:"requested_shots"`
	Shots     int                             `json:"shots"`
	Outcome   string                          `json:"outcome"`
	Error     string                          `json:"error,omitempty"`
	Camera    map[camera.Phase]camera.Applied `json:"camera,omitempty"`
}

// Note is an operator note attached to the session.
type Note struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}
