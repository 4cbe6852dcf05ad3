package research

import (
	"encoding/json"
	"time"
)

// Provenance tells the caller why the returned content was served.
type Provenance string

const (
	ProvenanceFresh       Provenance = "Fresh"
	ProvenanceStale       Provenance = "Stale"
	ProvenanceRegenerated Provenance = "Regenerated"
)

// Reason is the branch of the decision policy that produced a result.
type Reason string

const (
	ReasonNoCachedContent    Reason = "NoCachedContent"
	ReasonFresh              Reason = "Fresh"
	ReasonStaleFirstView     Reason = "StaleFirstView"
	ReasonStaleReturningView Reason = "StaleReturningView"
	ReasonForcedRegenerate   Reason = "ForcedRegenerate"
)

// Result is what a resolution hands back to the presentation layer.
type Result struct {
	Key                CacheKey           `json:"key"`
	Content            json.RawMessage    `json:"content"`
	Metadata           GenerationMetadata `json:"metadata"`
	Provenance         Provenance         `json:"provenance"`
	Reason             Reason             `json:"reason"`
	GeneratedAt        time.Time          `json:"generatedAt"`
	AgeDays            int                `json:"ageDays"`
	GenerationSequence int64              `json:"generationSequence"`
	CanRegenerate      bool               `json:"canRegenerate"`
	Joined             bool               `json:"joined,omitempty"`
}

// GeneratedNew reports whether this call caused a generation.
func (r *Result) GeneratedNew() bool {
	return r.Provenance == ProvenanceRegenerated
}

// NewResult builds a result from an entry as observed at now.
func NewResult(entry *CacheEntry, provenance Provenance, reason Reason, now time.Time) *Result {
	return &Result{
		Key:                entry.Key,
		Content:            entry.Content,
		Metadata:           entry.Metadata,
		Provenance:         provenance,
		Reason:             reason,
		GeneratedAt:        entry.GeneratedAt,
		AgeDays:            entry.AgeDays(now),
		GenerationSequence: entry.GenerationSequence,
		CanRegenerate:      provenance == ProvenanceStale,
	}
}
