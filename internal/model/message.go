package model

import "time"

// Message 会话消息
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID  uint64    `gorm:"not null;index:idx_thread_created,priority:1" json:"thread_id"`
	SenderID  uint64    `gorm:"not null" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"index:idx_thread_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Before 按 (created_at, id) 升序比较
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}
