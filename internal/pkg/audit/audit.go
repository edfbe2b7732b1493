package audit

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/sitesmith/sitesmith/app/models"
)

// Recorder appends entries to the audit trail. Writes are fire-and-forget:
// a failure here is logged and never surfaces to the caller, because an
// audit problem must not change the outcome of the operation being audited.
type Recorder interface {
	Record(ctx context.Context, orgID uint, action, targetType, targetID, requestID string, metadata map[string]interface{})
}

type gormRecorder struct {
	db *gorm.DB
}

// NewRecorder creates an audit recorder backed by GORM.
func NewRecorder(db *gorm.DB) Recorder {
	return &gormRecorder{db: db}
}

func (r *gormRecorder) Record(ctx context.Context, orgID uint, action, targetType, targetID, requestID string, metadata map[string]interface{}) {
	metaJSON := ""
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			metaJSON = string(b)
		} else {
			log.Warnf("[Audit] failed to serialize metadata for action %s: %v", action, err)
		}
	}

	entry := &models.AuditLogEntry{
		OrganizationID: orgID,
		Action:         action,
		TargetType:     targetType,
		TargetID:       targetID,
		Metadata:       metaJSON,
		RequestID:      requestID,
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		log.Errorf("[Audit] failed to record %s for org %d: %v", action, orgID, err)
	}
}
