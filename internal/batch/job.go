// Package batch manages asynchronous bulk-generation jobs against the
// provider's batch endpoint: submit, poll, list, and the persisted job
// records tracking them.
package batch

import "time"

// Job statuses mirror the provider's processing_status values, stored
// as-is so a poll is a last-write-wins overwrite.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusEnded      = "ended"
)

// JobTypeCollection is the only job type this runtime submits: bulk
// generation of one collection across a set of villages.
const JobTypeCollection = "collection_generation"

// Collection types the generators know how to prompt for.
const (
	CollectionRestaurants    = "restaurants"
	CollectionAccommodations = "accommodations"
	CollectionPOIs           = "pois"
	CollectionEvents         = "events"
	CollectionTransportation = "transportation"
	CollectionWeather        = "weather"
)

// Villages covered by the site, west to east.
var Villages = []string{"riomaggiore", "manarola", "corniglia", "vernazza", "monterosso"}

// Job is the persisted record of one provider-side batch.
//
// ItemsProcessed never exceeds ItemsCount. ResultsProcessed is an
// application-side flag flipped only after an explicit import step; the
// provider's status alone never sets it.
type Job struct {
	ID               string         `json:"id"`
	BatchID          string         `json:"batch_id"`
	JobType          string         `json:"job_type"`
	CollectionType   string         `json:"collection_type"`
	WebsiteID        string         `json:"website_id"`
	Status           string         `json:"status"`
	ItemsCount       int            `json:"items_count"`
	ItemsProcessed   int            `json:"items_processed"`
	ResultsProcessed bool           `json:"results_processed"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// ValidCollection reports whether the generators support ct.
func ValidCollection(ct string) bool {
	switch ct {
	case CollectionRestaurants, CollectionAccommodations, CollectionPOIs,
		CollectionEvents, CollectionTransportation, CollectionWeather:
		return true
	}
	return false
}
