package billing

import (
	"time"

	"github.com/sitesmith/sitesmith/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookEvent(id uint, status, errorMessage string) error
	GetWebhookEventByID(id uint) (*models.WebhookEvent, error)
	IncrementWebhookAttempts(id uint) error
	ListPurgeableWebhookEvents(before time.Time, limit int) ([]models.WebhookEvent, error)
	DeleteWebhookEvents(ids []uint) error

	GetOrCreateSubscription(orgID uint) (*models.Subscription, error)
	GetSubscriptionByOrg(orgID uint) (*models.Subscription, error)
	FindOrgIDByStripeCustomer(customerID string) (uint, error)
	UpdateSubscriptionByOrg(orgID uint, updates map[string]interface{}) error
	DowngradeSitesToFree(orgID uint) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// CreateWebhookEventIfNotExists inserts the event unless a row with the same
// (provider, event_id) already exists. The uniqueness constraint makes the
// check-and-insert atomic, so two concurrent deliveries of the same event
// cannot both see "not a duplicate".
func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND event_id = ?", event.Provider, event.EventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookEvent(id uint, status, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	}
	switch status {
	case models.WebhookStatusProcessed, models.WebhookStatusFailed, models.WebhookStatusQuarantined:
		now := time.Now()
		updates["processed_at"] = &now
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetWebhookEventByID(id uint) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *gormRepository) IncrementWebhookAttempts(id uint) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
}

func (r *gormRepository) ListPurgeableWebhookEvents(before time.Time, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.
		Where("status IN ? AND created_at < ?",
			[]string{models.WebhookStatusProcessed, models.WebhookStatusQuarantined}, before).
		Order("id").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) DeleteWebhookEvents(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Delete(&models.WebhookEvent{}, ids).Error
}

// GetOrCreateSubscription ensures the implicit free-tier row for an org.
func (r *gormRepository) GetOrCreateSubscription(orgID uint) (*models.Subscription, error) {
	sub := &models.Subscription{
		OrganizationID: orgID,
		Plan:           models.SubscriptionPlanFree,
		Status:         models.SubscriptionStatusActive,
	}
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoNothing: true,
	}).Create(sub).Error; err != nil {
		return nil, err
	}

	return r.GetSubscriptionByOrg(orgID)
}

func (r *gormRepository) GetSubscriptionByOrg(orgID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("organization_id = ?", orgID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindOrgIDByStripeCustomer(customerID string) (uint, error) {
	var sub models.Subscription
	if err := r.db.Where("stripe_customer_id = ?", customerID).First(&sub).Error; err != nil {
		return 0, err
	}
	return sub.OrganizationID, nil
}

// UpdateSubscriptionByOrg applies one conditional column-level update scoped
// by org, so concurrent events for the same org cannot lose updates across a
// read-then-write pair.
func (r *gormRepository) UpdateSubscriptionByOrg(orgID uint, updates map[string]interface{}) error {
	return r.db.Model(&models.Subscription{}).
		Where("organization_id = ?", orgID).
		Updates(updates).Error
}

func (r *gormRepository) DowngradeSitesToFree(orgID uint) (int64, error) {
	tx := r.db.Model(&models.Site{}).
		Where("organization_id = ? AND plan <> ?", orgID, models.SitePlanFree).
		Update("plan", models.SitePlanFree)
	return tx.RowsAffected, tx.Error
}
