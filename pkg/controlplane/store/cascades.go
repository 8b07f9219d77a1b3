package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/drover-ai/drover/pkg/controlplane/models"
)

// ============================================
// CASCADE OPERATIONS
// ============================================

// CreateCascade inserts a new cascade.
func (s *GORMStore) CreateCascade(ctx context.Context, cascade *models.Cascade) (string, error) {
	if cascade.Status == "" {
		cascade.Status = string(models.CascadeStatusAnalyzing)
	}
	return createWithID(s.db, ctx, cascade, cascade.ID, func(c *models.Cascade, id string) { c.ID = id })
}

// GetCascade retrieves a cascade by id.
func (s *GORMStore) GetCascade(ctx context.Context, id string) (*models.Cascade, error) {
	return getByField[models.Cascade](s.db, ctx, "id", id, models.ErrCascadeNotFound)
}

// ListCascades retrieves all cascades, newest first.
func (s *GORMStore) ListCascades(ctx context.Context) ([]*models.Cascade, error) {
	var cascades []*models.Cascade
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&cascades).Error; err != nil {
		return nil, err
	}
	return cascades, nil
}

// SaveCascade persists the cascade's mutable fields (status, file lists,
// summary, dispatch telemetry).
func (s *GORMStore) SaveCascade(ctx context.Context, cascade *models.Cascade) error {
	cascade.UpdatedAt = time.Now()

	result := s.db.WithContext(ctx).
		Model(&models.Cascade{}).
		Where("id = ?", cascade.ID).
		Updates(map[string]any{
			"core_files_changed":  cascade.CoreFilesChanged,
			"downstream_files":    cascade.DownstreamFiles,
			"repair_job_count":    cascade.RepairJobCount,
			"summary":             cascade.Summary,
			"confidence":          cascade.Confidence,
			"status":              cascade.Status,
			"dispatch_latency_ms": cascade.DispatchLatencyMs,
			"dispatched_count":    cascade.DispatchedCount,
			"conflict_count":      cascade.ConflictCount,
			"failed_count":        cascade.FailedCount,
			"updated_at":          cascade.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrCascadeNotFound
	}
	return nil
}

// DeleteCascade removes a cascade and nulls the pointer in its sessions.
// The sessions themselves survive; the grouping is weak.
func (s *GORMStore) DeleteCascade(ctx context.Context, id string) error {
	return s.InTx(ctx, func(tx *gorm.DB) error {
		var cascade models.Cascade
		if err := tx.Where("id = ?", id).First(&cascade).Error; err != nil {
			return convertNotFoundError(err, models.ErrCascadeNotFound)
		}

		if err := tx.Model(&models.Session{}).
			Where("cascade_id = ?", id).
			Update("cascade_id", nil).Error; err != nil {
			return err
		}

		return tx.Delete(&cascade).Error
	})
}
