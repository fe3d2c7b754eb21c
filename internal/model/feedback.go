package model

import "time"

// Feedback 对应 feedback 表，记录聊天窗口提交的自由反馈。
type Feedback struct {
	ID        string    `gorm:"type:varchar(26);primaryKey" json:"id"`
	SessionID string    `gorm:"type:varchar(64);index" json:"sessionId"`
	Rating    int       `gorm:"not null;default:0" json:"rating"`
	Message   string    `gorm:"type:text" json:"message"`
	Page      string    `gorm:"type:varchar(255)" json:"page"`
	ClientIP  string    `gorm:"type:varchar(64)" json:"clientIp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Feedback) TableName() string {
	return "feedback"
}
