package jobs

import (
	"context"
	"time"

	"delegation-service/internal/services"
	"github.com/sirupsen/logrus"
)

// ExpiryJob periodically transitions lapsed delegation grants to expired.
// Safe to run in multiple pods: the sweep claims each grant with a
// conditional update, so concurrent instances never double-process one.
type ExpiryJob struct {
	service  *services.DelegationService
	logger   *logrus.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewExpiryJob creates a new expiry job
func NewExpiryJob(service *services.DelegationService, logger *logrus.Logger, interval time.Duration) *ExpiryJob {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ExpiryJob{
		service:  service,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the expiry job
func (j *ExpiryJob) Start(ctx context.Context) {
	j.logger.Info("Expiry job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.runSweep(ctx)
		case <-j.stopCh:
			j.logger.Info("Expiry job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Expiry job context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *ExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *ExpiryJob) runSweep(ctx context.Context) {
	j.logger.Debug("Running expiry sweep...")

	expired, err := j.service.SweepExpirations(ctx, time.Now())
	if err != nil {
		j.logger.Errorf("Expiry sweep failed: %v", err)
		return
	}

	if expired > 0 {
		j.logger.Infof("Expired %d delegation grants", expired)
	}
}
