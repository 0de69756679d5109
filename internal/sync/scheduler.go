package sync

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"game-sync-client/internal/config"
	"game-sync-client/internal/logger"
)

// Scheduler runs periodic replay passes as a safety net behind the
// event-driven triggers (reconnect, enqueue).
type Scheduler struct {
	cfg         config.SyncConfig
	coordinator *Coordinator
	cron        *cron.Cron
	entryID     cron.EntryID
}

func NewScheduler(cfg config.SyncConfig, coordinator *Coordinator) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		coordinator: coordinator,
		cron:        cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.ReplayEnabled {
		logger.Log.Info("Replay scheduler is disabled")
		return
	}

	logger.Log.Info("Starting replay scheduler", zap.String("schedule", s.cfg.ReplaySchedule))

	id, err := s.cron.AddFunc(s.cfg.ReplaySchedule, func() {
		logger.Log.Debug("Scheduled replay pass")
		s.coordinator.TriggerReplay()
	})

	if err != nil {
		logger.Log.Error("Failed to schedule replay pass", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped replay scheduler")
}
