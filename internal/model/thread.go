package model

import (
	"fmt"
	"time"
)

const (
	ThreadKindAdministrative int8 = 1 // 客户 <-> 管理方
	ThreadKindStaff          int8 = 2 // 客户 <-> 造型师
)

// Thread 会话主表
type Thread struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind           int8      `gorm:"not null;default:1" json:"kind"`
	ParticipantA   uint64    `gorm:"not null;index" json:"participant_a"` // 客户
	ParticipantB   uint64    `gorm:"not null;index" json:"participant_b"` // 造型师或管理方
	PairKey        string    `gorm:"uniqueIndex;type:varchar(64)" json:"-"`
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Thread) TableName() string { return "chat_threads" }

// PairKey 同一对参与方在同一类型下只对应一个会话
func PairKey(kind int8, a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d:%d", kind, a, b)
}

// HasParticipant 判断用户是否为会话一方
func (t *Thread) HasParticipant(userID uint64) bool {
	return t.ParticipantA == userID || t.ParticipantB == userID
}
