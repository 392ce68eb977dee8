package repository

import (
	"context"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/port"
	"gorm.io/gorm"
)

var _ port.AppNamespaceRepository = (*AppNamespaceRepo)(nil)

type AppNamespaceRepo struct {
	db *gorm.DB
}

func NewAppNamespaceRepo(db *gorm.DB) *AppNamespaceRepo {
	return &AppNamespaceRepo{db: db}
}

func (r *AppNamespaceRepo) FindByAppAndName(ctx context.Context, appID, namespaceName string) (*domain.AppNamespace, error) {
	var m AppNamespaceModel
	result := r.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Where(lowerEquals("name"), namespaceName).
		First(&m)
	if result.Error != nil {
		if isNotFound(result.Error) {
			return nil, domain.ErrAppNamespaceNotFound
		}
		return nil, result.Error
	}
	return modelToAppNamespace(&m), nil
}

func (r *AppNamespaceRepo) FindPublicByName(ctx context.Context, namespaceName string) (*domain.AppNamespace, error) {
	var m AppNamespaceModel
	result := r.db.WithContext(ctx).
		Where("is_public = ?", true).
		Where(lowerEquals("name"), namespaceName).
		Order("id ASC").
		First(&m)
	if result.Error != nil {
		if isNotFound(result.Error) {
			return nil, domain.ErrAppNamespaceNotFound
		}
		return nil, result.Error
	}
	return modelToAppNamespace(&m), nil
}

func modelToAppNamespace(m *AppNamespaceModel) *domain.AppNamespace {
	return &domain.AppNamespace{AppID: m.AppID, Name: m.Name, IsPublic: m.IsPublic}
}
