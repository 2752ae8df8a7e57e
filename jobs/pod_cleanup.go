package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BlobLister is the slice of the blob store the cleanup job needs.
type BlobLister interface {
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// PODCleanupJob removes proof-of-delivery objects that no shipment
// references anymore, e.g. after re-uploads or shipment deletion.
type PODCleanupJob struct {
	Pool   *pgxpool.Pool
	Store  BlobLister
	Logger *slog.Logger
}

// NewPODCleanupJob wires dependencies for the cleanup handler.
func NewPODCleanupJob(pool *pgxpool.Pool, store BlobLister, logger *slog.Logger) *PODCleanupJob {
	return &PODCleanupJob{Pool: pool, Store: store, Logger: logger}
}

// Handle processes proof-of-delivery cleanup tasks.
func (j *PODCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Store == nil {
		return errors.New("pod cleanup: handler not configured")
	}

	rows, err := j.Pool.Query(ctx, "SELECT pod_key FROM shipments WHERE pod_key IS NOT NULL")
	if err != nil {
		return err
	}
	defer rows.Close()

	referenced := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return err
		}
		referenced[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	keys, err := j.Store.List(ctx)
	if err != nil {
		return err
	}

	removed := 0
	for _, key := range keys {
		if _, ok := referenced[key]; ok {
			continue
		}
		if err := j.Store.Delete(ctx, key); err != nil {
			j.Logger.Warn("pod cleanup delete", slog.String("key", key), slog.Any("error", err))
			continue
		}
		removed++
	}

	j.Logger.Info("pod cleanup finished",
		slog.Int("objects", len(keys)),
		slog.Int("removed", removed))
	return nil
}
