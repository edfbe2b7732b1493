package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/sitesmith/sitesmith/app/models"
	"github.com/sitesmith/sitesmith/internal/pkg/audit"
	"github.com/sitesmith/sitesmith/internal/pkg/entitlements"
)

// Service runs the webhook ingestion pipeline: idempotency ledger, event
// store, subscription reconciliation, sale notification and audit trail.
type Service struct {
	repo      Repository
	audit     audit.Recorder
	notifier  SaleNotifier
	planCache PlanCache
}

// NewService creates a billing service. notifier and planCache may be nil;
// both are optional collaborators.
func NewService(repo Repository, recorder audit.Recorder, notifier SaleNotifier, planCache PlanCache) *Service {
	return &Service{repo: repo, audit: recorder, notifier: notifier, planCache: planCache}
}

// ProcessEvent runs one verified, parsed webhook delivery through the
// pipeline. The returned error means the event row could not be persisted;
// every other problem is carried inside ProcessResult so the caller can
// still acknowledge the delivery.
func (s *Service) ProcessEvent(ctx context.Context, ev *StripeEvent, rawBody []byte, requestID string) (*ProcessResult, error) {
	hash := HashPayload(rawBody)
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Provider:    models.BillingProviderStripe,
		EventID:     ev.ID,
		EventType:   ev.Type,
		PayloadJSON: string(rawBody),
		PayloadHash: hash,
		Status:      models.WebhookStatusProcessing,
		Attempts:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("persist webhook event: %w", err)
	}

	res := &ProcessResult{EventRowID: stored.ID}
	if !created {
		res.Duplicate = true
		if stored.PayloadHash != hash {
			// Same event id with a different body is a signature anomaly,
			// not routine redelivery. Flag it and still acknowledge.
			res.Quarantined = true
			s.markEvent(stored.ID, models.WebhookStatusQuarantined, "payload hash mismatch on redelivery")
			s.audit.Record(ctx, 0, "billing.webhook_quarantined", "webhook_event",
				strconv.FormatUint(uint64(stored.ID), 10), requestID, map[string]interface{}{
					"message":    "Redelivery of " + ev.ID + " carried a different payload",
					"event_id":   ev.ID,
					"event_type": ev.Type,
				})
			log.Warnf("[Billing] quarantined event %s: redelivery with different payload hash", ev.ID)
		}
		return res, nil
	}

	s.runReconciliation(ctx, stored.ID, ev, requestID, res)
	return res, nil
}

// ReplayEvent re-runs reconciliation for a stored event. This is the manual
// recovery path for failed handlers; it increments the attempt counter and
// goes through the same dispatch as a live delivery.
func (s *Service) ReplayEvent(ctx context.Context, eventRowID uint, requestID string) (*ProcessResult, error) {
	stored, err := s.repo.GetWebhookEventByID(eventRowID)
	if err != nil {
		return nil, err
	}
	ev, err := ParseStripeEvent([]byte(stored.PayloadJSON))
	if err != nil {
		return nil, fmt.Errorf("parse stored payload: %w", err)
	}
	if err := s.repo.IncrementWebhookAttempts(stored.ID); err != nil {
		log.Warnf("[Billing] failed to bump attempts for event row %d: %v", stored.ID, err)
	}
	s.markEvent(stored.ID, models.WebhookStatusProcessing, "")

	res := &ProcessResult{EventRowID: stored.ID}
	s.runReconciliation(ctx, stored.ID, ev, requestID, res)
	return res, nil
}

func (s *Service) runReconciliation(ctx context.Context, eventRowID uint, ev *StripeEvent, requestID string, res *ProcessResult) {
	handler, ok := reconcileHandlers[ev.Type]
	if !ok {
		// Forward compatibility: provider-added event types must not fail
		// the delivery.
		log.Infof("[Billing] unhandled webhook event type %q (%s), acknowledging", ev.Type, ev.ID)
		res.Ignored = true
		s.markEvent(eventRowID, models.WebhookStatusProcessed, "")
		return
	}

	outcome, err := handler(ctx, s, ev, requestID)
	if err != nil {
		if errors.Is(err, ErrOrgNotResolved) {
			log.Infof("[Billing] event %s (%s) has no resolvable org, acknowledging as no-op", ev.ID, ev.Type)
			res.Ignored = true
			s.markEvent(eventRowID, models.WebhookStatusProcessed, "")
			return
		}
		s.failEvent(ctx, eventRowID, ev, requestID, err, res)
		return
	}

	if outcome.Updates != nil {
		if _, err := s.repo.GetOrCreateSubscription(outcome.OrgID); err != nil {
			s.failEvent(ctx, eventRowID, ev, requestID, fmt.Errorf("ensure subscription for org %d: %w", outcome.OrgID, err), res)
			return
		}
		if err := s.repo.UpdateSubscriptionByOrg(outcome.OrgID, outcome.Updates); err != nil {
			s.failEvent(ctx, eventRowID, ev, requestID, fmt.Errorf("update subscription for org %d: %w", outcome.OrgID, err), res)
			return
		}
		if outcome.DowngradeSites {
			n, err := s.repo.DowngradeSitesToFree(outcome.OrgID)
			if err != nil {
				s.failEvent(ctx, eventRowID, ev, requestID, fmt.Errorf("downgrade sites for org %d: %w", outcome.OrgID, err), res)
				return
			}
			log.Infof("[Billing] downgraded %d site(s) of org %d to free", n, outcome.OrgID)
		}
		if s.planCache != nil {
			s.planCache.Invalidate(outcome.OrgID)
		}
	}

	// The subscription state above is already committed; the notification is
	// best-effort and its failure must not roll anything back.
	if outcome.Sale != nil && s.notifier != nil {
		if err := s.notifier.NotifySale(ctx, outcome.Sale); err != nil {
			log.Warnf("[Billing] sale notification for event %s failed: %v", ev.ID, err)
		}
	}

	s.markEvent(eventRowID, models.WebhookStatusProcessed, "")
	if outcome.Updates != nil {
		s.audit.Record(ctx, outcome.OrgID, outcome.Action, outcome.TargetType, outcome.TargetID,
			requestID, map[string]interface{}{
				"message":    outcome.Message,
				"event_id":   ev.ID,
				"event_type": ev.Type,
			})
	}
	res.Handled = true
}

func (s *Service) failEvent(ctx context.Context, eventRowID uint, ev *StripeEvent, requestID string, handlerErr error, res *ProcessResult) {
	res.HandlerErr = handlerErr
	s.markEvent(eventRowID, models.WebhookStatusFailed, handlerErr.Error())
	// Best effort: an audit failure here must not mask the original error.
	s.audit.Record(ctx, 0, actionForEventType(ev.Type)+".processing_failed", "webhook_event",
		strconv.FormatUint(uint64(eventRowID), 10), requestID, map[string]interface{}{
			"message":    "Webhook reconciliation failed",
			"error":      handlerErr.Error(),
			"event_id":   ev.ID,
			"event_type": ev.Type,
		})
	log.Errorf("[Billing] reconciliation of event %s (%s) failed: %v", ev.ID, ev.Type, handlerErr)
}

func (s *Service) markEvent(eventRowID uint, status, errorMessage string) {
	if err := s.repo.MarkWebhookEvent(eventRowID, status, errorMessage); err != nil {
		log.Errorf("[Billing] failed to mark event row %d as %s: %v", eventRowID, status, err)
	}
}

// GetOrgEntitlements resolves the effective entitlements for an org. A
// missing subscription row means the org has never seen a billing event and
// is on the free tier.
func (s *Service) GetOrgEntitlements(ctx context.Context, orgID uint) (entitlements.Entitlements, error) {
	sub, err := s.repo.GetOrCreateSubscription(orgID)
	if err != nil {
		return entitlements.ForPlan(entitlements.PlanFree), err
	}
	return entitlements.ForSubscription(sub), nil
}

// PayloadArchiver copies a raw event payload to the blob store before the
// row is purged from the relational store.
type PayloadArchiver interface {
	ArchivePayload(ctx context.Context, event *models.WebhookEvent) error
}

// PurgeEventsBefore deletes processed and quarantined events created before
// cutoff, archiving payloads first when an archiver is configured. Failed
// rows are never purged automatically; they are the manual-replay queue.
func (s *Service) PurgeEventsBefore(ctx context.Context, cutoff time.Time, archiver PayloadArchiver) (int, error) {
	const batchSize = 200
	total := 0
	for {
		events, err := s.repo.ListPurgeableWebhookEvents(cutoff, batchSize)
		if err != nil {
			return total, err
		}
		if len(events) == 0 {
			return total, nil
		}
		ids := make([]uint, 0, len(events))
		for i := range events {
			if archiver != nil {
				if err := archiver.ArchivePayload(ctx, &events[i]); err != nil {
					return total, fmt.Errorf("archive event row %d: %w", events[i].ID, err)
				}
			}
			ids = append(ids, events[i].ID)
		}
		if err := s.repo.DeleteWebhookEvents(ids); err != nil {
			return total, err
		}
		total += len(ids)
	}
}
