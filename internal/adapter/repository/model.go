package repository

import "time"

// AppNamespaceModel 是 namespace 归属关系的数据库持久化模型。
type AppNamespaceModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	AppID     string `gorm:"size:128;uniqueIndex:idx_app_namespace"`
	Name      string `gorm:"size:128;uniqueIndex:idx_app_namespace;index"`
	IsPublic  bool   `gorm:"index"`
	Comment   string
	CreatedAt time.Time
}

func (AppNamespaceModel) TableName() string { return "app_namespaces" }

// ReleaseModel 是 Release 的数据库持久化模型。
type ReleaseModel struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	ReleaseKey     string `gorm:"size:64;uniqueIndex"`
	Name           string
	Comment        string
	AppID          string `gorm:"size:128;index:idx_release_scope"`
	ClusterName    string `gorm:"size:128;index:idx_release_scope"`
	NamespaceName  string `gorm:"size:128;index:idx_release_scope"`
	Configurations string `gorm:"type:text"` // JSON 对象，保留 key 顺序
	IsAbandoned    bool
	CreatedAt      time.Time
}

func (ReleaseModel) TableName() string { return "releases" }

// ReleaseMessageModel 是变更日志的一行，ID 由数据库自增分配。
type ReleaseMessageModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Message   string `gorm:"size:512;index"`
	CreatedAt time.Time
}

func (ReleaseMessageModel) TableName() string { return "release_messages" }

// GrayReleaseRuleModel 是灰度规则的数据库持久化模型。
type GrayReleaseRuleModel struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	AppID         string `gorm:"size:128;index:idx_gray_scope"`
	ClusterName   string `gorm:"size:128;index:idx_gray_scope"`
	NamespaceName string `gorm:"size:128;index:idx_gray_scope"`
	BranchName    string `gorm:"size:128"`
	ReleaseID     int64
	BranchStatus  int    `gorm:"index"`
	Rules         string `gorm:"type:text"` // JSON 序列化的 []grayRuleItemDTO
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (GrayReleaseRuleModel) TableName() string { return "gray_release_rules" }

// grayRuleItemDTO 是规则项在 Rules 列中的存储格式。
type grayRuleItemDTO struct {
	ClientAppID     string   `json:"clientAppId"`
	ClientIPList    []string `json:"clientIpList"`
	ClientLabelList []string `json:"clientLabelList"`
}
