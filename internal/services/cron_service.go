package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron          *cron.Cron
	expirationSvc *HoldExpirationService
	schedule      string
	logger        *logrus.Logger
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewCronService creates a new CronService. schedule is a robfig/cron expression
// such as "@every 30s" or "*/30 * * * * *".
func NewCronService(expirationSvc *HoldExpirationService, schedule string, logger *logrus.Logger) *CronService {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.Recover(cron.PrintfLogger(logger)),
			cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
		),
	)
	ctx, cancel := context.WithCancel(context.Background())

	return &CronService{
		cron:          c,
		expirationSvc: expirationSvc,
		schedule:      schedule,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.expireHoldsJob); err != nil {
		return fmt.Errorf("failed to schedule hold expiry job: %w", err)
	}
	s.logger.WithField("schedule", s.schedule).Info("Scheduled: hold expiry sweep")

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) expireHoldsJob() {
	start := time.Now()
	s.expirationSvc.RunOnce(s.ctx)
	s.logger.WithField("duration", time.Since(start).String()).Debug("[CRON] Hold expiry sweep finished")
}

// RunExpireHoldsNow runs the sweep immediately
func (s *CronService) RunExpireHoldsNow() {
	s.expireHoldsJob()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
		"sweep":     s.expirationSvc.GetStats(),
	}
}
