package repository

import (
	"context"
	"strings"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/port"
	"gorm.io/gorm"
)

var _ port.ReleaseMessageRepository = (*ReleaseMessageRepo)(nil)

type ReleaseMessageRepo struct {
	db *gorm.DB
}

func NewReleaseMessageRepo(db *gorm.DB) *ReleaseMessageRepo {
	return &ReleaseMessageRepo{db: db}
}

func (r *ReleaseMessageRepo) FindSince(ctx context.Context, watermark int64, limit int) ([]*domain.ReleaseMessage, error) {
	var models []ReleaseMessageModel
	err := r.db.WithContext(ctx).
		Where("id > ?", watermark).
		Order("id ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return modelsToMessages(models), nil
}

func (r *ReleaseMessageRepo) FindByIDs(ctx context.Context, ids []int64) ([]*domain.ReleaseMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []ReleaseMessageModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return modelsToMessages(models), nil
}

func (r *ReleaseMessageRepo) FindLatestID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.WithContext(ctx).
		Model(&ReleaseMessageModel{}).
		Select("COALESCE(MAX(id), 0)").
		Scan(&id).Error
	return id, err
}

// FindLatestByMessages 先按小写 message 分组取最大 ID，再回表取原始行。
func (r *ReleaseMessageRepo) FindLatestByMessages(ctx context.Context, messages []string) ([]*domain.ReleaseMessage, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(messages))
	for i, m := range messages {
		lowered[i] = strings.ToLower(m)
	}

	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&ReleaseMessageModel{}).
		Select("MAX(id)").
		Where("LOWER(message) IN ?", lowered).
		Group("LOWER(message)").
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return r.FindByIDs(ctx, ids)
}

func modelsToMessages(models []ReleaseMessageModel) []*domain.ReleaseMessage {
	out := make([]*domain.ReleaseMessage, 0, len(models))
	for i := range models {
		out = append(out, &domain.ReleaseMessage{ID: models[i].ID, Message: models[i].Message})
	}
	return out
}
