// Package messaging delivers lifecycle events to connected operator clients.
package messaging

import "github.com/AtRiskMedia/reportcache-go/internal/domain/events"

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(event events.Event)
}
