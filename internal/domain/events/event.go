// Package events provides the lifecycle events emitted while resolving
// reports.
package events

import "time"

// Type names an event.
type Type string

const (
	GenerationStarted   Type = "generation.started"
	GenerationCompleted Type = "generation.completed"
	GenerationFailed    Type = "generation.failed"
	GenerationJoined    Type = "generation.joined"
	QuotaExceeded       Type = "quota.exceeded"
	CachePurged         Type = "cache.purged"
)

// Event is one observable step of a resolution.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Key       string    `json:"key"`
	UserID    string    `json:"userId,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
