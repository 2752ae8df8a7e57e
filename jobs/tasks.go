package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportWarmup pre-populates the report caches.
	TaskReportWarmup = "reports:warmup"
	// TaskOverdueScan flags invoices past their due date.
	TaskOverdueScan = "invoices:overdue-scan"
	// TaskPODCleanup removes proof-of-delivery objects no shipment references.
	TaskPODCleanup = "shipments:pod-cleanup"
)

// NewReportWarmupTask constructs a report warmup task.
func NewReportWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskReportWarmup, nil)
}

// NewOverdueScanTask constructs an overdue invoice scan task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueScan, nil)
}

// NewPODCleanupTask constructs a proof-of-delivery cleanup task.
func NewPODCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskPODCleanup, nil)
}
