package models

import "time"

const (
	WebhookStatusReceived    = "received"
	WebhookStatusProcessing  = "processing"
	WebhookStatusProcessed   = "processed"
	WebhookStatusFailed      = "failed"
	WebhookStatusQuarantined = "quarantined"
)

// WebhookEvent stores provider webhook payloads with deduplication metadata
// for idempotent processing. The unique (provider, event_id) index is the
// idempotency ledger: a second delivery of the same event must hit the
// constraint instead of creating a second row.
type WebhookEvent struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Provider     string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	EventID      string     `gorm:"type:varchar(191);not null;index:ux_webhook_events_provider_event,unique,priority:2" json:"event_id"`
	EventType    string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON  string     `gorm:"type:longtext;not null" json:"payload_json"`
	PayloadHash  string     `gorm:"type:varchar(64);not null" json:"payload_hash"`
	Status       string     `gorm:"type:varchar(20);not null;default:'received';index" json:"status"`
	ErrorMessage string     `gorm:"type:text" json:"error_message"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	ProcessedAt  *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
