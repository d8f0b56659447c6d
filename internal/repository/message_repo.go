package repository

import (
	"Atelier/internal/model"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UnreadRow 按会话分组的未读数
type UnreadRow struct {
	ThreadID uint64 `gorm:"column:thread_id"`
	Count    int    `gorm:"column:cnt"`
}

type MessageRepo interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	ListMessages(ctx context.Context, threadID uint64) ([]*model.Message, error)
	CountUnread(ctx context.Context, readerID uint64, administration bool) ([]UnreadRow, error)
	MarkRead(ctx context.Context, threadID, requesterID uint64, fromRequester bool) ([]*model.Message, error)
}

type messageRepoImpl struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepoImpl{db: db}
}

// CreateMessage 写入消息并推进会话活跃时间
func (s *messageRepoImpl) CreateMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Thread{}).
			Where("id = ? AND last_activity_at < ?", msg.ThreadID, msg.CreatedAt).
			Update("last_activity_at", msg.CreatedAt).Error
	})
}

// ListMessages 会话全部消息，按 (created_at, id) 升序
func (s *messageRepoImpl) ListMessages(ctx context.Context, threadID uint64) ([]*model.Message, error) {
	var msgs []*model.Message
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	return msgs, err
}

// CountUnread 发给 readerID 的未读消息，按会话分组。
// 客户读非客户发出的消息，会话 B 方读客户发出的消息；administration 为 true 时另计全部管理方会话中客户发出的消息
func (s *messageRepoImpl) CountUnread(ctx context.Context, readerID uint64, administration bool) ([]UnreadRow, error) {
	cond := "(t.participant_a = ? AND m.sender_id <> t.participant_a) OR (t.participant_a <> ? AND t.participant_b = ? AND m.sender_id = t.participant_a)"
	args := []interface{}{readerID, readerID, readerID}
	if administration {
		cond += " OR (t.kind = ? AND t.participant_a <> ? AND m.sender_id = t.participant_a)"
		args = append(args, model.ThreadKindAdministrative, readerID)
	}

	var rows []UnreadRow
	err := s.db.WithContext(ctx).Table("chat_messages m").
		Select("m.thread_id AS thread_id, COUNT(*) AS cnt").
		Joins("JOIN chat_threads t ON t.id = m.thread_id").
		Where("m.is_read = ?", false).
		Where(cond, args...).
		Group("m.thread_id").
		Scan(&rows).Error
	return rows, err
}

// MarkRead 锁定会话内一方发出的未读消息并置为已读，返回被翻转的消息。
// fromRequester 为 true 时翻转客户发出的消息，否则翻转非客户发出的消息
func (s *messageRepoImpl) MarkRead(ctx context.Context, threadID, requesterID uint64, fromRequester bool) ([]*model.Message, error) {
	senderCond := "sender_id <> ?"
	if fromRequester {
		senderCond = "sender_id = ?"
	}

	var flipped []*model.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("thread_id = ? AND is_read = ?", threadID, false).
			Where(senderCond, requesterID).
			Find(&flipped).Error; err != nil {
			return err
		}
		if len(flipped) == 0 {
			return nil
		}

		ids := make([]uint64, 0, len(flipped))
		for _, m := range flipped {
			ids = append(ids, m.ID)
		}
		if err := tx.Model(&model.Message{}).Where("id IN ?", ids).Update("is_read", true).Error; err != nil {
			return err
		}
		for _, m := range flipped {
			m.IsRead = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flipped, nil
}
