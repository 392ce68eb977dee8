package repository

import (
	"context"
	"encoding/json"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/port"
	"gorm.io/gorm"
)

var _ port.ReleaseRepository = (*ReleaseRepo)(nil)

type ReleaseRepo struct {
	db *gorm.DB
}

func NewReleaseRepo(db *gorm.DB) *ReleaseRepo {
	return &ReleaseRepo{db: db}
}

func (r *ReleaseRepo) FindLatestActive(ctx context.Context, appID, clusterName, namespaceName string) (*domain.Release, error) {
	var m ReleaseModel
	result := r.db.WithContext(ctx).
		Where("app_id = ? AND cluster_name = ?", appID, clusterName).
		Where(lowerEquals("namespace_name"), namespaceName).
		Where("is_abandoned = ?", false).
		Order("id DESC").
		First(&m)
	if result.Error != nil {
		if isNotFound(result.Error) {
			return nil, domain.ErrReleaseNotFound
		}
		return nil, result.Error
	}
	return modelToRelease(&m)
}

func (r *ReleaseRepo) FindByID(ctx context.Context, id int64) (*domain.Release, error) {
	var m ReleaseModel
	result := r.db.WithContext(ctx).First(&m, "id = ?", id)
	if result.Error != nil {
		if isNotFound(result.Error) {
			return nil, domain.ErrReleaseNotFound
		}
		return nil, result.Error
	}
	return modelToRelease(&m)
}

func releaseToModel(r *domain.Release) (*ReleaseModel, error) {
	configurations, err := json.Marshal(r.Configurations)
	if err != nil {
		return nil, err
	}
	return &ReleaseModel{
		ID:             r.ID,
		ReleaseKey:     r.ReleaseKey,
		Name:           r.Name,
		Comment:        r.Comment,
		AppID:          r.AppID,
		ClusterName:    r.ClusterName,
		NamespaceName:  r.NamespaceName,
		Configurations: string(configurations),
		IsAbandoned:    r.IsAbandoned,
		CreatedAt:      r.CreatedAt,
	}, nil
}

func modelToRelease(m *ReleaseModel) (*domain.Release, error) {
	configurations := domain.NewConfigurations()
	if m.Configurations != "" {
		if err := json.Unmarshal([]byte(m.Configurations), configurations); err != nil {
			return nil, err
		}
	}
	return &domain.Release{
		ID:             m.ID,
		ReleaseKey:     m.ReleaseKey,
		Name:           m.Name,
		Comment:        m.Comment,
		AppID:          m.AppID,
		ClusterName:    m.ClusterName,
		NamespaceName:  m.NamespaceName,
		Configurations: configurations,
		IsAbandoned:    m.IsAbandoned,
		CreatedAt:      m.CreatedAt,
	}, nil
}
