package events

import "time"

const TopicBackfillCompleted = "kibor_backfill_completed"

// Publisher is implemented by event transports (Kafka in production).
type Publisher interface {
	Publish(topic string, event any) error
}

// BackfillCompleted is emitted when a rate backfill job finishes.
type BackfillCompleted struct {
	JobID         string    `json:"job_id"`
	BankID        int64     `json:"bank_id"`
	LoanID        int64     `json:"loan_id"`
	TotalDays     int       `json:"total_days"`
	ProcessedDays int       `json:"processed_days"`
	CompletedAt   time.Time `json:"completed_at"`
}
