package domain

import "time"

// Bus channels and streams.
const (
	ChannelListing  = "ch:listing"
	ChannelAnalysis = "ch:analysis"
	StreamEvents    = "stream:events"
)

// Event types published on ChannelListing and appended to StreamEvents.
const (
	EventIndustryCreated    = "industry.created"
	EventIndustryRenamed    = "industry.renamed"
	EventIndustryDeleted    = "industry.deleted"
	EventPredictionCreated  = "prediction.created"
	EventPredictionResolved = "prediction.resolved"
	EventPredictionDeleted  = "prediction.deleted"
	EventListingSnapshot    = "listing.snapshot"
	EventAnalysisCompleted  = "analysis.completed"
	EventAnalysisFailed     = "analysis.failed"
)

// Event is the JSON envelope carried on the signal bus and pushed to
// WebSocket clients.
type Event struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Listing is the full current result set of both entity listings.
type Listing struct {
	Version     int64        `json:"version"`
	Industries  []Industry   `json:"industries"`
	Predictions []Prediction `json:"predictions"`
}
