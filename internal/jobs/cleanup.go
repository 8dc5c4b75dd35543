package jobs

import (
	"time"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"

	"github.com/freshnest/cleaning-backend/pkg/logging"
	"github.com/freshnest/cleaning-backend/pkg/models"
)

// Scheduler runs the nightly token housekeeping: expired magic links and
// reset tokens are nulled, stale sessions revoked, and unused review tokens
// past their window deleted.
type Scheduler struct {
	db        *gorm.DB
	scheduler *gocron.Scheduler
}

func NewScheduler(db *gorm.DB) *Scheduler {
	return &Scheduler{
		db:        db,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start registers the cleanup job (daily, 03:00 UTC) and launches the
// scheduler without blocking.
func (s *Scheduler) Start() {
	if _, err := s.scheduler.Every(1).Day().At("03:00").Do(s.Cleanup); err != nil {
		logging.Logger.WithError(err).Error("failed to schedule token cleanup")
		return
	}
	s.scheduler.StartAsync()
	logging.Logger.Info("token cleanup scheduled daily at 03:00 UTC")
}

// Stop halts the scheduler, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// Cleanup is one housekeeping pass. Each statement is independent and
// best-effort; a failure is logged and the rest still run.
func (s *Scheduler) Cleanup() {
	now := time.Now()

	res := s.db.Model(&models.User{}).
		Where("magic_link_expires_at IS NOT NULL AND magic_link_expires_at < ?", now).
		Updates(map[string]any{
			"magic_link_token":      nil,
			"magic_link_expires_at": nil,
		})
	if res.Error != nil {
		logging.Logger.WithError(res.Error).Warn("magic link cleanup failed")
	} else if res.RowsAffected > 0 {
		logging.Logger.Infof("cleared %d expired magic links", res.RowsAffected)
	}

	res = s.db.Model(&models.User{}).
		Where("reset_expires_at IS NOT NULL AND reset_expires_at < ?", now).
		Updates(map[string]any{
			"reset_token":      nil,
			"reset_expires_at": nil,
		})
	if res.Error != nil {
		logging.Logger.WithError(res.Error).Warn("reset token cleanup failed")
	} else if res.RowsAffected > 0 {
		logging.Logger.Infof("cleared %d expired reset tokens", res.RowsAffected)
	}

	res = s.db.Model(&models.User{}).
		Where("session_expires_at IS NOT NULL AND session_expires_at < ?", now).
		Updates(map[string]any{
			"session_token":      nil,
			"session_expires_at": nil,
		})
	if res.Error != nil {
		logging.Logger.WithError(res.Error).Warn("session cleanup failed")
	} else if res.RowsAffected > 0 {
		logging.Logger.Infof("revoked %d expired sessions", res.RowsAffected)
	}

	res = s.db.Where("used = false AND expires_at < ?", now).
		Delete(&models.ReviewToken{})
	if res.Error != nil {
		logging.Logger.WithError(res.Error).Warn("review token cleanup failed")
	} else if res.RowsAffected > 0 {
		logging.Logger.Infof("deleted %d expired review tokens", res.RowsAffected)
	}
}
