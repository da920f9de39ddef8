// Package pipeline runs scheduled background jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

const (
	archiveLockKey = "archive:chat_exchanges"
	archiveLockTTL = 30 * time.Minute
)

// ArchiveJob moves chat exchanges older than the retention period to cold
// storage.
type ArchiveJob struct {
	archiver      domain.Archiver
	locks         domain.LockManager
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiveJob creates an ArchiveJob. locks may be nil, in which case runs
// are not coordinated across replicas.
func NewArchiveJob(archiver domain.Archiver, locks domain.LockManager, retentionDays int, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archiver:      archiver,
		locks:         locks,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// Run executes a single archive run.
func (j *ArchiveJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retentionDays) * 24 * time.Hour)

	if j.locks != nil {
		unlock, err := j.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			j.logger.InfoContext(ctx, "pipeline: archive run skipped, lock held elsewhere")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: archive lock: %w", err)
		}
		defer unlock()
	}

	j.logger.InfoContext(ctx, "pipeline: archive run started",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", j.retentionDays),
	)

	count, err := j.archiver.ArchiveChats(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive chats before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	j.logger.InfoContext(ctx, "pipeline: archive run complete",
		slog.Int64("chats_archived", count),
	)
	return nil
}

// RunCron runs the job on a 5-field cron schedule (UTC) until ctx is
// cancelled. Failed runs are logged and do not stop the schedule.
func (j *ArchiveJob) RunCron(ctx context.Context, cronExpr string) error {
	schedule, err := ParseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
	}
	j.logger.InfoContext(ctx, "pipeline: archive cron started", slog.String("cron", cronExpr))

	for {
		next, err := schedule.Next(j.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
		}

		wait := time.Until(next)
		j.logger.DebugContext(ctx, "pipeline: archive cron waiting",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.InfoContext(ctx, "pipeline: archive cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := j.Run(ctx); err != nil {
				j.logger.ErrorContext(ctx, "pipeline: archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
