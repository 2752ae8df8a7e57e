package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the report aggregations. All queries are read-only.
type Repository interface {
	MarginRows(ctx context.Context, f Filter) ([]MarginRow, error)
	OperationalCostTotals(ctx context.Context, f Filter) (map[int64]float64, error)
	SalesRows(ctx context.Context, f Filter) ([]SalesRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// MarginRows returns per-manifest revenue and billing totals. Operational
// costs are fetched separately and merged by the service.
func (r *repository) MarginRows(ctx context.Context, f Filter) ([]MarginRow, error) {
	conditions := []string{"1=1"}
	var args []any
	argPos := 1

	if f.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("d.manifest_date >= $%d", argPos))
		args = append(args, *f.DateFrom)
		argPos++
	}
	if f.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("d.manifest_date <= $%d", argPos))
		args = append(args, *f.DateTo)
		argPos++
	}
	if f.Destination != nil && *f.Destination != "" {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM dbl_items dx JOIN shipments sx ON sx.id = dx.shipment_id WHERE dx.dbl_id = d.id AND sx.destination ILIKE $%d)", argPos))
		args = append(args, *f.Destination)
		argPos++
	}

	query := fmt.Sprintf(`
		SELECT d.id, d.number, d.manifest_date, d.vehicle_number, d.total_bayar,
		       COUNT(s.id), COALESCE(SUM(s.nominal), 0)
		FROM dbl d
		LEFT JOIN dbl_items di ON di.dbl_id = d.id
		LEFT JOIN shipments s ON s.id = di.shipment_id
		WHERE %s
		GROUP BY d.id
		ORDER BY d.manifest_date, d.id`, strings.Join(conditions, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MarginRow
	for rows.Next() {
		var row MarginRow
		if err := rows.Scan(&row.ManifestID, &row.Number, &row.ManifestDate,
			&row.VehicleNumber, &row.TotalBayar, &row.ShipmentCount, &row.Revenue); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// OperationalCostTotals returns each manifest's summed operational cost
// record, keyed by manifest id.
func (r *repository) OperationalCostTotals(ctx context.Context, f Filter) (map[int64]float64, error) {
	conditions := []string{"1=1"}
	var args []any
	argPos := 1

	if f.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("d.manifest_date >= $%d", argPos))
		args = append(args, *f.DateFrom)
		argPos++
	}
	if f.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("d.manifest_date <= $%d", argPos))
		args = append(args, *f.DateTo)
		argPos++
	}

	query := fmt.Sprintf(`
		SELECT oc.dbl_id,
		       oc.fuel_cost + oc.toll_cost + oc.port_fee + oc.driver_allowance
		       + oc.repair_cost + oc.other_cost
		FROM dbl_operational_costs oc
		JOIN dbl d ON d.id = oc.dbl_id
		WHERE %s`, strings.Join(conditions, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]float64{}
	for rows.Next() {
		var id int64
		var total float64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		out[id] = total
	}
	return out, rows.Err()
}

// SalesRows aggregates billing per customer, excluding cancelled invoices.
func (r *repository) SalesRows(ctx context.Context, f Filter) ([]SalesRow, error) {
	conditions := []string{"i.status <> 'cancelled'"}
	var args []any
	argPos := 1

	if f.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("i.issued_at >= $%d", argPos))
		args = append(args, *f.DateFrom)
		argPos++
	}
	if f.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("i.issued_at <= $%d", argPos))
		args = append(args, *f.DateTo)
		argPos++
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.name, COUNT(i.id),
		       COALESCE(SUM(i.total_tagihan), 0),
		       COALESCE(SUM(i.paid_amount), 0),
		       COALESCE(SUM(i.remaining_amount), 0)
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE %s
		GROUP BY c.id, c.name
		ORDER BY SUM(i.total_tagihan) DESC`, strings.Join(conditions, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SalesRow
	for rows.Next() {
		var row SalesRow
		if err := rows.Scan(&row.CustomerID, &row.CustomerName, &row.InvoiceCount,
			&row.TotalBilled, &row.TotalPaid, &row.Outstanding); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
