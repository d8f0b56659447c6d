package job

import (
	"Atelier/internal/chat"
	"Atelier/internal/pkg/consts"
	"Atelier/internal/pkg/logger"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const rosterRefreshTimeout = 30 * time.Second

// StaffRefresher 绕过缓存重新拉取名录
type StaffRefresher interface {
	RefreshStaff(ctx context.Context) ([]chat.Member, error)
}

// Locker 多实例部署时保证同一时刻只有一个实例刷新
type Locker interface {
	TryLock(ctx context.Context, key string, value interface{}, expiration time.Duration, retryTimes int) (bool, error)
	UnLock(ctx context.Context, key string, value interface{})
}

// RosterRefreshJob 定时刷新造型师名录缓存
type RosterRefreshJob struct {
	roster StaffRefresher
	locker Locker
}

func NewRosterRefreshJob(roster StaffRefresher, locker Locker) *RosterRefreshJob {
	return &RosterRefreshJob{roster: roster, locker: locker}
}

func (s *RosterRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(logger.WithTrace(context.Background(), "job"), rosterRefreshTimeout)
	defer cancel()

	token := uuid.NewString()
	ok, err := s.locker.TryLock(ctx, consts.RosterRefreshLock, token, rosterRefreshTimeout, 1)
	if err != nil {
		log.ErrorContext(ctx, "acquire roster refresh lock failed", "err", err)
		return
	}
	if !ok {
		log.DebugContext(ctx, "roster refresh running elsewhere")
		return
	}
	defer s.locker.UnLock(ctx, consts.RosterRefreshLock, token)

	start := time.Now()
	members, err := s.roster.RefreshStaff(ctx)
	if err != nil {
		log.ErrorContext(ctx, "refresh roster failed", "err", err)
		return
	}
	log.InfoContext(ctx, "roster refreshed", "count", len(members), "latency", time.Since(start))
}
