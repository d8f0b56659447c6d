package repository

import (
	"Atelier/internal/model"
	"context"

	"gorm.io/gorm"
)

type ThreadRepo interface {
	CreateThread(ctx context.Context, thread *model.Thread) error
	GetThread(ctx context.Context, threadID uint64) (*model.Thread, error)
	GetThreadByPairKey(ctx context.Context, pairKey string) (*model.Thread, error)
	ListThreadsByParticipant(ctx context.Context, userID uint64) ([]*model.Thread, error)
	ListAllThreads(ctx context.Context) ([]*model.Thread, error)
}

type threadRepoImpl struct {
	db *gorm.DB
}

func NewThreadRepo(db *gorm.DB) ThreadRepo {
	return &threadRepoImpl{db: db}
}

// CreateThread 新建会话，pair_key 唯一索引冲突时返回驱动原始错误
func (s *threadRepoImpl) CreateThread(ctx context.Context, thread *model.Thread) error {
	return s.db.WithContext(ctx).Create(thread).Error
}

// GetThread 根据会话 ID 获取会话
func (s *threadRepoImpl) GetThread(ctx context.Context, threadID uint64) (*model.Thread, error) {
	var thread model.Thread
	if err := s.db.WithContext(ctx).First(&thread, threadID).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

// GetThreadByPairKey 根据参与方组合获取会话
func (s *threadRepoImpl) GetThreadByPairKey(ctx context.Context, pairKey string) (*model.Thread, error) {
	var thread model.Thread
	if err := s.db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

// ListThreadsByParticipant 用户参与的会话，最近活跃在前
func (s *threadRepoImpl) ListThreadsByParticipant(ctx context.Context, userID uint64) ([]*model.Thread, error) {
	var threads []*model.Thread
	err := s.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("last_activity_at DESC, id DESC").
		Find(&threads).Error
	return threads, err
}

// ListAllThreads 管理员视角的全部会话
func (s *threadRepoImpl) ListAllThreads(ctx context.Context) ([]*model.Thread, error) {
	var threads []*model.Thread
	err := s.db.WithContext(ctx).
		Order("last_activity_at DESC, id DESC").
		Find(&threads).Error
	return threads, err
}
