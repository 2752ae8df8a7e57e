package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const cacheTTL = 5 * time.Minute

// Service builds the derived report views. Results are cached in redis
// keyed by filter, since the underlying aggregations join several tables.
type Service struct {
	repo   Repository
	cache  *redis.Client
	logger *slog.Logger
}

// NewService builds a Service instance. The cache client may be nil, in
// which case every call hits the database.
func NewService(repo Repository, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

func cacheKey(report string, f Filter) string {
	from, to, dest := "-", "-", "-"
	if f.DateFrom != nil {
		from = f.DateFrom.Format("2006-01-02")
	}
	if f.DateTo != nil {
		to = f.DateTo.Format("2006-01-02")
	}
	if f.Destination != nil {
		dest = *f.Destination
	}
	return fmt.Sprintf("reports:%s:%s:%s:%s", report, from, to, dest)
}

// Margin reports per-manifest profitability. The manifest rows and the
// operational cost totals load concurrently and are merged afterwards.
func (s *Service) Margin(ctx context.Context, f Filter) ([]MarginRow, error) {
	key := cacheKey("margin", f)
	var cached []MarginRow
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	var rows []MarginRow
	var costs map[int64]float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.MarginRows(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		costs, err = s.repo.OperationalCostTotals(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("margin report: %w", err)
	}

	for i := range rows {
		rows[i].OperationalCost = costs[rows[i].ManifestID]
		rows[i].Margin = rows[i].Revenue - rows[i].TotalBayar - rows[i].OperationalCost
	}

	s.writeCache(ctx, key, rows)
	return rows, nil
}

// Sales reports per-customer billing activity.
func (s *Service) Sales(ctx context.Context, f Filter) ([]SalesRow, error) {
	key := cacheKey("sales", f)
	var cached []SalesRow
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := s.repo.SalesRows(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("sales report: %w", err)
	}

	s.writeCache(ctx, key, rows)
	return rows, nil
}

// Invalidate drops every cached report. Exposed for the admin endpoint;
// normal writes rely on the short TTL instead.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, "reports:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil {
			s.logger.Warn("report cache invalidate", slog.Any("error", err))
			return
		}
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("report cache scan", slog.Any("error", err))
	}
}

func (s *Service) readCache(ctx context.Context, key string, target any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, target); err != nil {
		s.logger.Warn("report cache decode", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		s.logger.Warn("report cache write", slog.String("key", key), slog.Any("error", err))
	}
}
