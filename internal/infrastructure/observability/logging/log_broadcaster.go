package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// LogEntry is one log line as sent to stream subscribers.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	UserID    string `json:"userId,omitempty"`
	Key       string `json:"key,omitempty"`
}

// AppliedFilters selects which entries a subscriber receives. An empty or
// "all" channel matches every channel.
type AppliedFilters struct {
	Channel Channel
	Level   slog.Level
}

func (f AppliedFilters) match(entry LogEntry, level slog.Level) bool {
	if f.Channel != "" && f.Channel != "all" && f.Channel != Channel(entry.Channel) {
		return false
	}
	return level >= f.Level
}

// Subscriber is one connected log viewer.
type Subscriber struct {
	ID      string
	Channel chan []byte
	filters AppliedFilters
}

// LogBroadcaster fans log lines out to live subscribers. It is an io.Writer
// so it can sit next to the console and file outputs of every channel.
type LogBroadcaster struct {
	mu        sync.RWMutex
	clients   map[*Subscriber]struct{}
	broadcast chan []byte
	dropped   int64
}

// NewLogBroadcaster creates a broadcaster. Nothing is delivered until Run.
func NewLogBroadcaster() *LogBroadcaster {
	return &LogBroadcaster{
		clients:   make(map[*Subscriber]struct{}),
		broadcast: make(chan []byte, 1000),
	}
}

// Run distributes submitted lines until ctx ends, then closes every
// subscriber channel.
func (b *LogBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client.Channel)
			}
			b.mu.Unlock()
			return
		case line := <-b.broadcast:
			b.distribute(line)
		}
	}
}

// Write accepts one encoded log record. It never blocks; lines are dropped
// when the broadcaster falls behind.
func (b *LogBroadcaster) Write(p []byte) (int, error) {
	line := bytes.Clone(p)
	select {
	case b.broadcast <- line:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
	return len(p), nil
}

// Dropped reports how many lines were discarded under load.
func (b *LogBroadcaster) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

func (b *LogBroadcaster) distribute(line []byte) {
	entry, level := parseEntry(line)
	message, err := json.Marshal(entry)
	if err != nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		if !client.filters.match(entry, level) {
			continue
		}
		select {
		case client.Channel <- message:
		default:
			// slow viewer
		}
	}
}

// parseEntry reads a JSON slog record. Text records are passed through as
// the message.
func parseEntry(line []byte) (LogEntry, slog.Level) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return LogEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     slog.LevelInfo.String(),
			Message:   string(bytes.TrimSpace(line)),
		}, slog.LevelInfo
	}

	entry := LogEntry{
		Timestamp: stringField(raw, "time"),
		Level:     stringField(raw, "level"),
		Channel:   stringField(raw, "channel"),
		Message:   stringField(raw, "msg"),
		UserID:    stringField(raw, "userId"),
		Key:       stringField(raw, "key"),
	}
	level, err := ParseLevel(entry.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return entry, level
}

func stringField(data map[string]any, key string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return ""
}

// Subscribe registers a viewer with the given filters.
func (b *LogBroadcaster) Subscribe(filters AppliedFilters) *Subscriber {
	client := &Subscriber{
		ID:      ulid.Make().String(),
		Channel: make(chan []byte, 100),
		filters: filters,
	}
	b.mu.Lock()
	b.clients[client] = struct{}{}
	b.mu.Unlock()
	return client
}

// Unsubscribe removes a viewer and closes its channel.
func (b *LogBroadcaster) Unsubscribe(client *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client.Channel)
	}
}

// SubscriberCount returns the number of connected viewers.
func (b *LogBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
