package cron

import (
	"Atelier/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

type Manager struct {
	engine           *cron.Cron
	rosterSpec       string
	rosterRefreshJob *job.RosterRefreshJob
}

func NewCronManager(rosterSpec string, rosterRefreshJob *job.RosterRefreshJob) *Manager {
	return &Manager{
		engine:           cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		rosterSpec:       rosterSpec,
		rosterRefreshJob: rosterRefreshJob,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if s.rosterSpec == "" {
		log.Warn("roster refresh disabled")
		return nil
	}
	if _, err := s.engine.AddJob(s.rosterSpec, s.rosterRefreshJob); err != nil {
		return err
	}
	return nil
}

// InitCron 注册并启动定时任务
func InitCron(mgr *Manager) error {
	log.Info("Cron Jobs starting...")
	if err := mgr.RegisterJobs(); err != nil {
		return err
	}
	mgr.Start()
	return nil
}

func (s *Manager) Start() {
	log.Info("Cron 定时任务引擎启动", "jobs", len(s.engine.Entries()))
	s.engine.Start()
}

// Stop 停止调度并等待运行中的任务结束
func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
