package domain

// ChangeType 描述单个配置项在两次发布之间的变化。
type ChangeType string

const (
	ChangeAdded    ChangeType = "ADDED"
	ChangeModified ChangeType = "MODIFIED"
	ChangeDeleted  ChangeType = "DELETED"
)

// ConfigChange 是一条配置差异。DELETED 时 NewValue 为 nil。
type ConfigChange struct {
	Key        string     `json:"key"`
	NewValue   *string    `json:"newValue"`
	ChangeType ChangeType `json:"changeType"`
}

// CalcConfigChanges 计算从 prev 到 next 的差异，nil 视为空配置。
// ADDED/MODIFIED 按 next 的 key 顺序输出，随后是按 prev 顺序输出的 DELETED。
func CalcConfigChanges(prev, next *Configurations) []ConfigChange {
	var changes []ConfigChange
	for _, key := range next.Keys() {
		newValue, _ := next.Get(key)
		oldValue, existed := prev.Get(key)
		switch {
		case !existed:
			changes = append(changes, ConfigChange{Key: key, NewValue: strPtr(newValue), ChangeType: ChangeAdded})
		case oldValue != newValue:
			changes = append(changes, ConfigChange{Key: key, NewValue: strPtr(newValue), ChangeType: ChangeModified})
		}
	}
	for _, key := range prev.Keys() {
		if _, ok := next.Get(key); !ok {
			changes = append(changes, ConfigChange{Key: key, ChangeType: ChangeDeleted})
		}
	}
	return changes
}

func strPtr(s string) *string { return &s }
