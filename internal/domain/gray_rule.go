package domain

import "github.com/juju/collections/set"

// BranchStatus 是灰度分支的状态。只有 Active 分支上的规则参与匹配。
type BranchStatus int

const (
	BranchStatusDeleted BranchStatus = iota
	BranchStatusActive
	BranchStatusMerged
)

// MatchAll 出现在 IP 或 label 集合中时匹配任意值。
const MatchAll = "*"

// GrayReleaseRuleItem 描述一组被灰度命中的客户端：同一个 clientAppId 下，IP 或 label 任一命中即可。
type GrayReleaseRuleItem struct {
	ClientAppID  string
	ClientIPs    set.Strings
	ClientLabels set.Strings
}

// Matches 判断客户端是否命中该规则项。
func (i GrayReleaseRuleItem) Matches(clientAppID, clientIP, clientLabel string) bool {
	if i.ClientAppID != clientAppID {
		return false
	}
	return i.matchesIP(clientIP) || i.matchesLabel(clientLabel)
}

func (i GrayReleaseRuleItem) matchesIP(ip string) bool {
	if i.ClientIPs.Contains(MatchAll) {
		return true
	}
	return ip != "" && i.ClientIPs.Contains(ip)
}

func (i GrayReleaseRuleItem) matchesLabel(label string) bool {
	if label == "" {
		return false
	}
	return i.ClientLabels.Contains(MatchAll) || i.ClientLabels.Contains(label)
}

// GrayReleaseRule 是一个灰度分支在某个作用域上的规则集合，命中后读取 ReleaseID 对应的发布。
type GrayReleaseRule struct {
	ID            int64                 `json:"id"`
	AppID         string                `json:"appId"`
	ClusterName   string                `json:"clusterName"`
	NamespaceName string                `json:"namespaceName"`
	BranchName    string                `json:"branchName"`
	ReleaseID     int64                 `json:"releaseId"`
	BranchStatus  BranchStatus          `json:"branchStatus"`
	RuleItems     []GrayReleaseRuleItem `json:"ruleItems"`
}

func (r *GrayReleaseRule) Scope() Scope {
	return Scope{AppID: r.AppID, ClusterName: r.ClusterName, NamespaceName: r.NamespaceName}
}

// Match 返回第一个命中的规则项是否存在。
func (r *GrayReleaseRule) Match(clientAppID, clientIP, clientLabel string) bool {
	if r.BranchStatus != BranchStatusActive || r.ReleaseID <= 0 {
		return false
	}
	for _, item := range r.RuleItems {
		if item.Matches(clientAppID, clientIP, clientLabel) {
			return true
		}
	}
	return false
}
