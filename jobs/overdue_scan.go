package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kargoline/kargoline/internal/invoices"
)

// OverdueScanJob walks the open invoices and logs those past their due
// date, so collections can chase them.
type OverdueScanJob struct {
	Invoices *invoices.Service
	Logger   *slog.Logger
	clock    func() time.Time
}

// NewOverdueScanJob wires dependencies for the overdue scan handler.
func NewOverdueScanJob(invoiceSvc *invoices.Service, logger *slog.Logger) *OverdueScanJob {
	return &OverdueScanJob{
		Invoices: invoiceSvc,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes overdue scan tasks.
func (j *OverdueScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Invoices == nil {
		return errors.New("overdue scan: handler not configured")
	}

	now := j.clock()
	overdue := 0
	var overdueAmount float64

	for _, status := range []invoices.Status{invoices.StatusPending, invoices.StatusPartial} {
		status := status
		offset := 0
		for {
			page, total, err := j.Invoices.List(ctx, invoices.ListInvoicesRequest{
				Status: &status,
				Limit:  200,
				Offset: offset,
			})
			if err != nil {
				return err
			}
			for _, inv := range page {
				if inv.DueDate != nil && inv.DueDate.Before(now) {
					overdue++
					overdueAmount += inv.RemainingAmount
					j.Logger.Warn("invoice overdue",
						slog.String("number", inv.Number),
						slog.String("customer", inv.CustomerName),
						slog.Float64("remaining", inv.RemainingAmount),
						slog.Time("due_date", *inv.DueDate))
				}
			}
			offset += len(page)
			if offset >= total || len(page) == 0 {
				break
			}
		}
	}

	j.Logger.Info("overdue scan finished",
		slog.Int("overdue", overdue),
		slog.Float64("remaining_total", overdueAmount))
	return nil
}
