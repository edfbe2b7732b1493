package models

import "time"

// AuditLogEntry is an append-only trail of meaningful state transitions and
// notable failures. Entries are never updated or deleted by the application.
type AuditLogEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Action         string    `gorm:"type:varchar(100);not null;index" json:"action"`
	TargetType     string    `gorm:"type:varchar(50);not null" json:"target_type"`
	TargetID       string    `gorm:"type:varchar(191);not null;default:''" json:"target_id"`
	Metadata       string    `gorm:"type:longtext" json:"metadata"`
	RequestID      string    `gorm:"type:varchar(64);default:''" json:"request_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
