package research

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// GenerationMetadata describes how an entry was produced.
type GenerationMetadata struct {
	Provider       string              `json:"provider,omitempty"`
	Model          string              `json:"model,omitempty"`
	Recommendation string              `json:"recommendation,omitempty"`
	TargetPrice    decimal.NullDecimal `json:"targetPrice"`
	InputTokens    int64               `json:"inputTokens,omitempty"`
	OutputTokens   int64               `json:"outputTokens,omitempty"`
}

// TotalTokens returns input plus output tokens.
func (m GenerationMetadata) TotalTokens() int64 {
	return m.InputTokens + m.OutputTokens
}

// CacheEntry is the most recent generated artifact for a key. There is at
// most one entry per key and GeneratedAt never moves backwards.
type CacheEntry struct {
	Key                CacheKey           `json:"key"`
	Content            json.RawMessage    `json:"content"`
	Metadata           GenerationMetadata `json:"metadata"`
	GeneratedAt        time.Time          `json:"generatedAt"`
	GenerationSequence int64              `json:"generationSequence"`
}

// AgeDays returns the number of whole days since the entry was generated.
func (e *CacheEntry) AgeDays(now time.Time) int {
	age := now.Sub(e.GeneratedAt)
	if age < 0 {
		return 0
	}
	return int(age / (24 * time.Hour))
}

// AccessRecord tracks when a user first and last retrieved a key.
type AccessRecord struct {
	UserID        string    `json:"userId"`
	Key           CacheKey  `json:"key"`
	FirstViewedAt time.Time `json:"firstViewedAt"`
	LastViewedAt  time.Time `json:"lastViewedAt"`
}

// HistoryItem is one row of a user's viewing history joined with the current
// state of the entry.
type HistoryItem struct {
	Key                CacheKey           `json:"key"`
	Metadata           GenerationMetadata `json:"metadata"`
	FirstViewedAt      time.Time          `json:"firstViewedAt"`
	LastViewedAt       time.Time          `json:"lastViewedAt"`
	GeneratedAt        time.Time          `json:"generatedAt"`
	GenerationSequence int64              `json:"generationSequence"`
	AgeDays            int                `json:"ageDays"`
	IsOutdated         bool               `json:"isOutdated"`
}

// GenerationRequest carries the semantic inputs of a key to a generator.
type GenerationRequest struct {
	Key CacheKey
}

// GeneratedContent is what a generator hands back on success.
type GeneratedContent struct {
	Content  json.RawMessage
	Metadata GenerationMetadata
}

// GenerationLease marks an in-flight generation for a key.
type GenerationLease struct {
	Key        string    `json:"key"`
	Owner      string    `json:"owner"`
	Generation int64     `json:"generation"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
