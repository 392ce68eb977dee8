package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/port"
	"github.com/juju/collections/set"
	"gorm.io/gorm"
)

var _ port.GrayReleaseRuleRepository = (*GrayReleaseRuleRepo)(nil)

type GrayReleaseRuleRepo struct {
	db *gorm.DB
}

func NewGrayReleaseRuleRepo(db *gorm.DB) *GrayReleaseRuleRepo {
	return &GrayReleaseRuleRepo{db: db}
}

func (r *GrayReleaseRuleRepo) FindActive(ctx context.Context, appID, clusterName, namespaceName string) ([]*domain.GrayReleaseRule, error) {
	var models []GrayReleaseRuleModel
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND cluster_name = ?", appID, clusterName).
		Where(lowerEquals("namespace_name"), namespaceName).
		Where("branch_status = ?", int(domain.BranchStatusActive)).
		Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return modelsToGrayRules(models)
}

func (r *GrayReleaseRuleRepo) FindAllActive(ctx context.Context) ([]*domain.GrayReleaseRule, error) {
	var models []GrayReleaseRuleModel
	err := r.db.WithContext(ctx).
		Where("branch_status = ?", int(domain.BranchStatusActive)).
		Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return modelsToGrayRules(models)
}

func modelsToGrayRules(models []GrayReleaseRuleModel) ([]*domain.GrayReleaseRule, error) {
	out := make([]*domain.GrayReleaseRule, 0, len(models))
	for i := range models {
		rule, err := modelToGrayRule(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func grayRuleToModel(r *domain.GrayReleaseRule) (*GrayReleaseRuleModel, error) {
	items := make([]grayRuleItemDTO, 0, len(r.RuleItems))
	for _, item := range r.RuleItems {
		items = append(items, grayRuleItemDTO{
			ClientAppID:     item.ClientAppID,
			ClientIPList:    item.ClientIPs.SortedValues(),
			ClientLabelList: item.ClientLabels.SortedValues(),
		})
	}
	rules, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return &GrayReleaseRuleModel{
		ID:            r.ID,
		AppID:         r.AppID,
		ClusterName:   r.ClusterName,
		NamespaceName: r.NamespaceName,
		BranchName:    r.BranchName,
		ReleaseID:     r.ReleaseID,
		BranchStatus:  int(r.BranchStatus),
		Rules:         string(rules),
	}, nil
}

func modelToGrayRule(m *GrayReleaseRuleModel) (*domain.GrayReleaseRule, error) {
	var items []grayRuleItemDTO
	if m.Rules != "" {
		if err := json.Unmarshal([]byte(m.Rules), &items); err != nil {
			return nil, fmt.Errorf("gray rule %d: decode rules: %w", m.ID, err)
		}
	}
	ruleItems := make([]domain.GrayReleaseRuleItem, 0, len(items))
	for _, item := range items {
		ruleItems = append(ruleItems, domain.GrayReleaseRuleItem{
			ClientAppID:  item.ClientAppID,
			ClientIPs:    set.NewStrings(item.ClientIPList...),
			ClientLabels: set.NewStrings(item.ClientLabelList...),
		})
	}
	return &domain.GrayReleaseRule{
		ID:            m.ID,
		AppID:         m.AppID,
		ClusterName:   m.ClusterName,
		NamespaceName: m.NamespaceName,
		BranchName:    m.BranchName,
		ReleaseID:     m.ReleaseID,
		BranchStatus:  domain.BranchStatus(m.BranchStatus),
		RuleItems:     ruleItems,
	}, nil
}
