package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kargoline/kargoline/internal/reports"
)

// ReportWarmupJob pre-populates the margin and sales report caches so the
// first dashboard hit of the day is served warm.
type ReportWarmupJob struct {
	Reports *reports.Service
	Logger  *slog.Logger
	clock   func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(reportsSvc *reports.Service, logger *slog.Logger) *ReportWarmupJob {
	return &ReportWarmupJob{
		Reports: reportsSvc,
		Logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks for the trailing 30 days.
func (j *ReportWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: handler not configured")
	}

	now := j.clock()
	from := now.AddDate(0, 0, -30)
	filter := reports.Filter{DateFrom: &from, DateTo: &now}

	start := now
	if _, err := j.Reports.Margin(ctx, filter); err != nil {
		j.Logger.Error("warmup margin report", slog.Any("error", err))
		return err
	}
	if _, err := j.Reports.Sales(ctx, filter); err != nil {
		j.Logger.Error("warmup sales report", slog.Any("error", err))
		return err
	}

	j.Logger.Info("report caches warmed",
		slog.Duration("took", j.clock().Sub(start)))
	return nil
}
