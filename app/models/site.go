package models

import "time"

const (
	SitePlanFree = "free"
	SitePlanPaid = "paid"

	SiteStatusActive   = "active"
	SiteStatusDisabled = "disabled"
)

// Site is one generated small-business website owned by an organization.
type Site struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	Name           string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Subdomain      string    `gorm:"type:varchar(63);not null;uniqueIndex" json:"subdomain" validate:"required,hostname,max=63"`
	Plan           string    `gorm:"type:varchar(20);not null;default:'free';index" json:"plan"`
	Status         string    `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
