package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/sitesmith/sitesmith/app/models"
	"github.com/sitesmith/sitesmith/internal/pkg/billing"
	"github.com/sitesmith/sitesmith/internal/pkg/database"
	"github.com/sitesmith/sitesmith/internal/pkg/env"
)

const defaultRetentionDays = 90

// AdminWebhookController exposes the operational surface for the webhook
// event store: inspecting failures, replaying events and purging old rows.
type AdminWebhookController struct {
	svc      *billing.Service
	archiver billing.PayloadArchiver
}

func NewAdminWebhookController(svc *billing.Service, archiver billing.PayloadArchiver) *AdminWebhookController {
	return &AdminWebhookController{svc: svc, archiver: archiver}
}

// ListFailedEvents returns the manual-replay queue, newest first.
func (ac *AdminWebhookController) ListFailedEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	var events []models.WebhookEvent
	err := database.GetDB().
		Where("status = ?", models.WebhookStatusFailed).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		log.Errorf("[Admin] failed event listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Event listing failed"})
	}

	items := make([]fiber.Map, 0, len(events))
	for i := range events {
		items = append(items, fiber.Map{
			"id":            events[i].ID,
			"provider":      events[i].Provider,
			"event_id":      events[i].EventID,
			"event_type":    events[i].EventType,
			"status":        events[i].Status,
			"attempts":      events[i].Attempts,
			"error_message": events[i].ErrorMessage,
			"created_at":    events[i].CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"events": items})
}

// ReplayEvent re-runs reconciliation for one stored event.
func (ac *AdminWebhookController) ReplayEvent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid event id"})
	}

	requestID := requestIDFromCtx(c)
	res, err := ac.svc.ReplayEvent(c.UserContext(), uint(id), requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Event not found"})
		}
		log.Errorf("[Admin] replay of event row %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Replay failed"})
	}

	body := fiber.Map{"event_row_id": res.EventRowID}
	switch {
	case res.HandlerErr != nil:
		body["status"] = "failed"
		body["error"] = res.HandlerErr.Error()
	case res.Ignored:
		body["status"] = "ignored"
	default:
		body["status"] = "processed"
	}
	return c.JSON(body)
}

// PurgeEvents archives and deletes processed/quarantined events older than the
// retention window. Failed events are kept until resolved.
func (ac *AdminWebhookController) PurgeEvents(c *fiber.Ctx) error {
	days := c.QueryInt("days", retentionDays())
	if days < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Retention days must be positive"})
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	purged, err := ac.svc.PurgeEventsBefore(c.UserContext(), cutoff, ac.archiver)
	if err != nil {
		log.Errorf("[Admin] purge failed after %d event(s): %v", purged, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal_server_error",
			"message": "Purge failed",
			"purged":  purged,
		})
	}

	return c.JSON(fiber.Map{"purged": purged, "cutoff": cutoff})
}

func retentionDays() int {
	if v, err := strconv.Atoi(env.GetEnv("WEBHOOK_RETENTION_DAYS", "")); err == nil && v > 0 {
		return v
	}
	return defaultRetentionDays
}
