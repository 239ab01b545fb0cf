package model

import "time"

// Toast is a transient notice shown on top of the transcript.
type Toast struct {
	ID      string        `json:"id"`
	Content any           `json:"content"`
	Timeout time.Duration `json:"timeout,omitempty"`
}
