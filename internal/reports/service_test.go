package reports

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeReportRepo struct {
	marginCalls int
	salesCalls  int
	margin      []MarginRow
	costs       map[int64]float64
	sales       []SalesRow
}

func (f *fakeReportRepo) MarginRows(_ context.Context, _ Filter) ([]MarginRow, error) {
	f.marginCalls++
	return append([]MarginRow(nil), f.margin...), nil
}

func (f *fakeReportRepo) OperationalCostTotals(_ context.Context, _ Filter) (map[int64]float64, error) {
	return f.costs, nil
}

func (f *fakeReportRepo) SalesRows(_ context.Context, _ Filter) ([]SalesRow, error) {
	f.salesCalls++
	return append([]SalesRow(nil), f.sales...), nil
}

func newTestReports(t *testing.T) (*Service, *fakeReportRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := &fakeReportRepo{
		margin: []MarginRow{
			{ManifestID: 1, Number: "DBL.2503.001", VehicleNumber: "DA 1234 XY", ShipmentCount: 3, Revenue: 5000000, TotalBayar: 1200000},
			{ManifestID: 2, Number: "DBL.2503.002", VehicleNumber: "DA 5678 ZZ", ShipmentCount: 1, Revenue: 900000, TotalBayar: 400000},
		},
		costs: map[int64]float64{1: 800000},
		sales: []SalesRow{
			{CustomerID: 1, CustomerName: "PT Sinar Jaya", InvoiceCount: 4, TotalBilled: 3000000, TotalPaid: 2000000, Outstanding: 1000000},
		},
	}
	return NewService(repo, client, slog.Default()), repo, mr
}

func TestMarginMergesOperationalCosts(t *testing.T) {
	svc, _, _ := newTestReports(t)

	rows, err := svc.Margin(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// manifest 1: 5000000 - 1200000 - 800000
	require.Equal(t, 800000.0, rows[0].OperationalCost)
	require.Equal(t, 3000000.0, rows[0].Margin)
	// manifest 2 has no cost record
	require.Equal(t, 0.0, rows[1].OperationalCost)
	require.Equal(t, 500000.0, rows[1].Margin)
}

func TestMarginServedFromCache(t *testing.T) {
	svc, repo, _ := newTestReports(t)
	ctx := context.Background()

	_, err := svc.Margin(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.marginCalls)

	rows, err := svc.Margin(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, 1, repo.marginCalls, "second call must come from cache")

	// A different filter is a different cache entry.
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.Margin(ctx, Filter{DateFrom: &from})
	require.NoError(t, err)
	require.Equal(t, 2, repo.marginCalls)
}

func TestCacheExpiry(t *testing.T) {
	svc, repo, mr := newTestReports(t)
	ctx := context.Background()

	_, err := svc.Sales(ctx, Filter{})
	require.NoError(t, err)
	_, err = svc.Sales(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.salesCalls)

	mr.FastForward(cacheTTL + time.Second)

	_, err = svc.Sales(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.salesCalls)
}

func TestInvalidateDropsCachedReports(t *testing.T) {
	svc, repo, _ := newTestReports(t)
	ctx := context.Background()

	_, err := svc.Margin(ctx, Filter{})
	require.NoError(t, err)
	_, err = svc.Sales(ctx, Filter{})
	require.NoError(t, err)

	svc.Invalidate(ctx)

	_, err = svc.Margin(ctx, Filter{})
	require.NoError(t, err)
	_, err = svc.Sales(ctx, Filter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.marginCalls)
	require.Equal(t, 2, repo.salesCalls)
}

func TestReportsWithoutCache(t *testing.T) {
	repo := &fakeReportRepo{sales: []SalesRow{{CustomerID: 1, CustomerName: "PT A"}}}
	svc := NewService(repo, nil, slog.Default())

	rows, err := svc.Sales(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
