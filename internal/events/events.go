// Package events delivers fire-and-forget progress notifications for
// batch jobs. Nothing in the runtime waits on a notification; delivery
// failures are logged and dropped.
package events

import (
	"time"

	"riviera/internal/batch"
	"riviera/internal/logging"
)

// Event types carried over the wire and the log.
const (
	TypeBatchSubmitted  = "batch.submitted"
	TypeBatchProcessing = "batch.processing"
)

// Event is the envelope pushed to subscribers.
type Event struct {
	Type           string    `json:"type"`
	JobID          string    `json:"job_id"`
	WebsiteID      string    `json:"website_id,omitempty"`
	CollectionType string    `json:"collection_type,omitempty"`
	Status         string    `json:"status"`
	ItemsCount     int       `json:"items_count"`
	ItemsProcessed int       `json:"items_processed"`
	Timestamp      time.Time `json:"timestamp"`
}

func fromJob(eventType string, job *batch.Job) Event {
	return Event{
		Type:           eventType,
		JobID:          job.ID,
		WebsiteID:      job.WebsiteID,
		CollectionType: job.CollectionType,
		Status:         job.Status,
		ItemsCount:     job.ItemsCount,
		ItemsProcessed: job.ItemsProcessed,
		Timestamp:      time.Now().UTC(),
	}
}

// LogNotifier writes job events to the structured log. It satisfies
// batch.Notifier.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.OrNop(logger)}
}

func (n *LogNotifier) BatchSubmitted(job *batch.Job) {
	n.logger.Info("batch submitted: job=%s collection=%s items=%d", job.ID, job.CollectionType, job.ItemsCount)
}

func (n *LogNotifier) BatchProcessing(job *batch.Job) {
	n.logger.Info("batch progress: job=%s status=%s processed=%d/%d", job.ID, job.Status, job.ItemsProcessed, job.ItemsCount)
}

// MultiNotifier fans one event out to several notifiers.
type MultiNotifier []batch.Notifier

func (m MultiNotifier) BatchSubmitted(job *batch.Job) {
	for _, n := range m {
		n.BatchSubmitted(job)
	}
}

func (m MultiNotifier) BatchProcessing(job *batch.Job) {
	for _, n := range m {
		n.BatchProcessing(job)
	}
}
