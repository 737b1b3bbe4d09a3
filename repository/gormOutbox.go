package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormOutbox struct{ db *gorm.DB }

func (r gormOutbox) Enqueue(ctx context.Context, rec *models.OutboxRecord) error {
	if rec.PublishStatus == "" {
		rec.PublishStatus = models.OutboxPublishStatusPending
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r gormOutbox) ClaimDue(ctx context.Context, p ClaimParams) ([]models.OutboxRecord, error) {
	var claimed []models.OutboxRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch)
		var due []models.OutboxRecord
		q := tx.
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, p.Now,
				models.OutboxPublishStatusProcessing, p.StaleBefore).
			Order("id ASC").
			Limit(p.Limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&due).Error; err != nil {
			return err
		}

		for i := range due {
			// Poison messages go terminal (DLQ equivalent).
			if p.MaxAttempts > 0 && due[i].PublishAttempts >= p.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", p.MaxAttempts)
				if err := tx.Model(&models.OutboxRecord{}).Where("id = ?", due[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			now := p.Now
			by := p.DispatcherID
			if err := tx.Model(&models.OutboxRecord{}).Where("id = ?", due[i].ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &by,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
			due[i].PublishStatus = models.OutboxPublishStatusProcessing
			due[i].LockedAt = &now
			due[i].LockedBy = &by
			due[i].PublishAttempts++
			due[i].LastPublishError = nil
			due[i].NextAttemptAt = nil
			claimed = append(claimed, due[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r gormOutbox) MarkSent(ctx context.Context, id int, messageID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.OutboxRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &at,
			"pub_sub_message_id": &messageID,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
}

func (r gormOutbox) MarkFailed(ctx context.Context, id int, errMsg string, nextAttemptAt *time.Time, dead bool) error {
	status := models.OutboxPublishStatusFailed
	if dead {
		status = models.OutboxPublishStatusDead
		nextAttemptAt = nil
	}
	return r.db.WithContext(ctx).
		Model(&models.OutboxRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_status":     status,
			"last_publish_error": &errMsg,
			"next_attempt_at":    nextAttemptAt,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
}
