package models

import "time"

// Organization is the owning tenant for sites, users and billing state.
type Organization struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	BillingEmail string    `gorm:"type:varchar(200);default:''" json:"billing_email" validate:"omitempty,email,max=200"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
