package model

import "time"

// ==================== Mall 店铺 ====================

// Mall 拼多多店铺及其开放平台凭证
// 由外部开通流程写入，同步引擎只读
type Mall struct {
	BaseModel
	OrgID    int64  `gorm:"index"`
	Name     string `gorm:"size:128"`
	ErpID    string `gorm:"size:64"`
	ErpName  string `gorm:"size:128"`
	Platform string `gorm:"size:32;default:pdd"`

	ClientID     string `gorm:"size:128"`
	ClientSecret string `gorm:"size:128"`
	Token        string `gorm:"size:255"`

	Active    bool `gorm:"index"`
	ExpiresAt *time.Time
}

func (*Mall) TableName() string {
	return "malls"
}

// DisplayName 日志展示用名称
func (m *Mall) DisplayName() string {
	if m.ErpName != "" {
		return m.ErpName
	}
	return m.Name
}
