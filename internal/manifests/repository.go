package manifests

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kargoline/kargoline/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("manifests: not found")
	ErrCostsNotFound = errors.New("manifests: operational costs not recorded")
)

const maxNumberRetries = 5

// ManifestShipment is one shipment as loaded on a manifest, in sequence
// order.
type ManifestShipment struct {
	ShipmentID       int64   `json:"shipment_id"`
	Position         int     `json:"position"`
	SPBNumber        string  `json:"spb_number"`
	CustomerID       *int64  `json:"customer_id,omitempty"`
	CustomerName     *string `json:"customer_name,omitempty"`
	GoodsDescription *string `json:"goods_description,omitempty"`
	Destination      string  `json:"destination"`
	Nominal          float64 `json:"nominal"`
	InvoiceGenerated bool    `json:"invoice_generated"`
}

// Repository defines data access for manifests. SetShipments runs as one
// transaction; shipment reference writes are its last statements.
type Repository interface {
	Get(ctx context.Context, id int64) (*Manifest, error)
	List(ctx context.Context, req ListManifestsRequest) ([]Summary, int, error)
	Create(ctx context.Context, m *Manifest) error
	Update(ctx context.Context, m *Manifest) error
	SetShipments(ctx context.Context, manifestID int64, shipmentIDs []int64) error
	Shipments(ctx context.Context, manifestID int64) ([]ManifestShipment, error)
	UninvoicedShipments(ctx context.Context, manifestID int64) ([]ManifestShipment, error)
	GetCosts(ctx context.Context, manifestID int64) (*OperationalCost, error)
	SaveCosts(ctx context.Context, c *OperationalCost) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const manifestColumns = `
	id, number, manifest_date, vehicle_number, driver_name, driver_phone,
	loco_amount, tekor_amount, driver_fee, commission, loading_cost,
	misc_cost, admin_fee, other_cost, total_tagihan, total_bayar,
	created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Manifest, error) {
	query := fmt.Sprintf("SELECT %s FROM dbl WHERE id = $1", manifestColumns)
	m, err := scanManifest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *repository) List(ctx context.Context, req ListManifestsRequest) ([]Summary, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.Search != nil && *req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(d.number ILIKE $%d OR d.vehicle_number ILIKE $%d OR d.driver_name ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+*req.Search+"%")
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("d.manifest_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("d.manifest_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM dbl d %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT d.id, d.number, d.manifest_date, d.vehicle_number, d.driver_name,
		       d.driver_phone, d.loco_amount, d.tekor_amount, d.driver_fee,
		       d.commission, d.loading_cost, d.misc_cost, d.admin_fee,
		       d.other_cost, d.total_tagihan, d.total_bayar,
		       d.created_at, d.updated_at,
		       COUNT(di.shipment_id) AS shipment_count
		FROM dbl d
		LEFT JOIN dbl_items di ON di.dbl_id = d.id
		%s
		GROUP BY d.id
		ORDER BY d.manifest_date DESC, d.id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var driverPhone pgtype.Text
		var manifestDate, createdAt, updatedAt pgtype.Timestamptz
		err := rows.Scan(
			&s.ID, &s.Number, &manifestDate, &s.VehicleNumber, &s.DriverName, &driverPhone,
			&s.LocoAmount, &s.TekorAmount, &s.DriverFee, &s.Commission, &s.LoadingCost,
			&s.MiscCost, &s.AdminFee, &s.OtherCost, &s.TotalTagihan, &s.TotalBayar,
			&createdAt, &updatedAt, &s.ShipmentCount,
		)
		if err != nil {
			return nil, 0, err
		}
		if driverPhone.Valid {
			s.DriverPhone = &driverPhone.String
		}
		s.ManifestDate = manifestDate.Time
		s.CreatedAt = createdAt.Time
		s.UpdatedAt = updatedAt.Time
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Create inserts the manifest, generating a DBL.<YY><MM>.<NNN> number when
// none was supplied. A number collision bumps the sequence and retries
// instead of failing.
func (r *repository) Create(ctx context.Context, m *Manifest) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if m.Number == "" {
			number, err := r.nextNumber(ctx, tx, m)
			if err != nil {
				return err
			}
			m.Number = number
		}
		return r.insertManifest(ctx, tx, m)
	})
}

// insertManifest writes the manifest row, bumping the sequence on a number
// collision. Each attempt runs in its own savepoint: a failed statement
// aborts a Postgres transaction outright, so the retry only works when the
// violation is rolled back to a savepoint first.
func (r *repository) insertManifest(ctx context.Context, tx pgx.Tx, m *Manifest) error {
	const query = `
		INSERT INTO dbl (
			number, manifest_date, vehicle_number, driver_name, driver_phone,
			loco_amount, tekor_amount, driver_fee, commission, loading_cost,
			misc_cost, admin_fee, other_cost, total_tagihan, total_bayar,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		RETURNING id`

	number := m.Number
	for attempt := 0; ; attempt++ {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("insert manifest: %w", err)
		}
		var id int64
		err = sp.QueryRow(ctx, query,
			number, m.ManifestDate, m.VehicleNumber, m.DriverName, textOrNull(m.DriverPhone),
			m.LocoAmount, m.TekorAmount, m.DriverFee, m.Commission, m.LoadingCost,
			m.MiscCost, m.AdminFee, m.OtherCost, m.TotalTagihan, m.TotalBayar,
		).Scan(&id)
		if err == nil {
			if err := sp.Commit(ctx); err != nil {
				return fmt.Errorf("insert manifest: %w", err)
			}
			m.ID = id
			m.Number = number
			return nil
		}
		_ = sp.Rollback(ctx)
		if !db.IsUniqueViolation(err) || attempt >= maxNumberRetries {
			return fmt.Errorf("insert manifest: %w", err)
		}
		bumped, bumpErr := bumpSequence(number)
		if bumpErr != nil {
			return fmt.Errorf("insert manifest: %w", err)
		}
		number = bumped
	}
}

func (r *repository) nextNumber(ctx context.Context, tx pgx.Tx, m *Manifest) (string, error) {
	prefix := "DBL." + m.ManifestDate.Format("0601") + "."

	// Ordered by the numeric suffix: lexicographic order diverges from the
	// sequence once it outgrows the zero padding.
	var last string
	err := tx.QueryRow(ctx, `
		SELECT number FROM dbl
		WHERE number LIKE $1
		ORDER BY (substring(number FROM '([0-9]+)$'))::int DESC NULLS LAST
		LIMIT 1
		FOR UPDATE`, prefix+"%").Scan(&last)

	seq := 1
	if err == nil {
		var n int
		if _, scanErr := fmt.Sscanf(strings.TrimPrefix(last, prefix), "%d", &n); scanErr == nil {
			seq = n + 1
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lock manifest number: %w", err)
	}

	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

func bumpSequence(number string) (string, error) {
	idx := strings.LastIndex(number, ".")
	if idx < 0 {
		return "", fmt.Errorf("manifests: malformed number %q", number)
	}
	var seq int
	if _, err := fmt.Sscanf(number[idx+1:], "%d", &seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%03d", number[:idx], seq+1), nil
}

func (r *repository) Update(ctx context.Context, m *Manifest) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE dbl
		SET manifest_date = $2, vehicle_number = $3, driver_name = $4,
		    driver_phone = $5, loco_amount = $6, tekor_amount = $7,
		    driver_fee = $8, commission = $9, loading_cost = $10,
		    misc_cost = $11, admin_fee = $12, other_cost = $13,
		    total_tagihan = $14, total_bayar = $15, updated_at = NOW()
		WHERE id = $1`,
		m.ID, m.ManifestDate, m.VehicleNumber, m.DriverName, textOrNull(m.DriverPhone),
		m.LocoAmount, m.TekorAmount, m.DriverFee, m.Commission, m.LoadingCost,
		m.MiscCost, m.AdminFee, m.OtherCost, m.TotalTagihan, m.TotalBayar)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetShipments replaces the manifest's item set atomically. Links are
// diffed against the new ordered list; removed shipments lose their
// manifest reference, added ones gain it, and positions follow list order.
func (r *repository) SetShipments(ctx context.Context, manifestID int64, shipmentIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM dbl WHERE id = $1)", manifestID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}

		rows, err := tx.Query(ctx, "SELECT shipment_id FROM dbl_items WHERE dbl_id = $1", manifestID)
		if err != nil {
			return err
		}
		existing := map[int64]bool{}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			existing[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		wanted := map[int64]bool{}
		var added []int64
		for _, id := range shipmentIDs {
			wanted[id] = true
			if !existing[id] {
				added = append(added, id)
			}
		}
		var removed []int64
		for id := range existing {
			if !wanted[id] {
				removed = append(removed, id)
			}
		}

		if len(removed) > 0 {
			if _, err := tx.Exec(ctx,
				"DELETE FROM dbl_items WHERE dbl_id = $1 AND shipment_id = ANY($2)",
				manifestID, removed); err != nil {
				return fmt.Errorf("remove links: %w", err)
			}
		}
		for pos, id := range shipmentIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO dbl_items (dbl_id, shipment_id, position)
				VALUES ($1, $2, $3)
				ON CONFLICT (dbl_id, shipment_id) DO UPDATE SET position = EXCLUDED.position`,
				manifestID, id, pos); err != nil {
				return fmt.Errorf("link shipment %d: %w", id, err)
			}
		}

		// Shipment reference writes come last in the transaction.
		if len(removed) > 0 {
			if _, err := tx.Exec(ctx,
				"UPDATE shipments SET dbl_id = NULL, updated_at = NOW() WHERE id = ANY($1)",
				removed); err != nil {
				return fmt.Errorf("clear shipment refs: %w", err)
			}
		}
		if len(added) > 0 {
			if _, err := tx.Exec(ctx,
				"UPDATE shipments SET dbl_id = $1, updated_at = NOW() WHERE id = ANY($2)",
				manifestID, added); err != nil {
				return fmt.Errorf("set shipment refs: %w", err)
			}
		}
		return nil
	})
}

const manifestShipmentQuery = `
	SELECT s.id, di.position, s.spb_number, s.customer_id, s.customer_name,
	       s.goods_description, s.destination, s.nominal, s.invoice_generated
	FROM dbl_items di
	JOIN shipments s ON s.id = di.shipment_id
	WHERE di.dbl_id = $1`

func (r *repository) Shipments(ctx context.Context, manifestID int64) ([]ManifestShipment, error) {
	return r.queryShipments(ctx, manifestShipmentQuery+" ORDER BY di.position", manifestID)
}

// UninvoicedShipments returns the manifest's billable shipments that are
// not yet tied to a live invoice.
func (r *repository) UninvoicedShipments(ctx context.Context, manifestID int64) ([]ManifestShipment, error) {
	query := manifestShipmentQuery + `
	  AND s.invoice_generated = FALSE AND s.nominal > 0
	ORDER BY di.position`
	return r.queryShipments(ctx, query, manifestID)
}

func (r *repository) queryShipments(ctx context.Context, query string, manifestID int64) ([]ManifestShipment, error) {
	rows, err := r.pool.Query(ctx, query, manifestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ManifestShipment
	for rows.Next() {
		var ms ManifestShipment
		var customerID pgtype.Int8
		var customerName, goodsDescription pgtype.Text
		if err := rows.Scan(&ms.ShipmentID, &ms.Position, &ms.SPBNumber, &customerID,
			&customerName, &goodsDescription, &ms.Destination, &ms.Nominal, &ms.InvoiceGenerated); err != nil {
			return nil, err
		}
		if customerID.Valid {
			ms.CustomerID = &customerID.Int64
		}
		if customerName.Valid {
			ms.CustomerName = &customerName.String
		}
		if goodsDescription.Valid {
			ms.GoodsDescription = &goodsDescription.String
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

func (r *repository) GetCosts(ctx context.Context, manifestID int64) (*OperationalCost, error) {
	var c OperationalCost
	var notes pgtype.Text
	var updatedAt pgtype.Timestamptz

	err := r.pool.QueryRow(ctx, `
		SELECT dbl_id, fuel_cost, toll_cost, port_fee, driver_allowance,
		       repair_cost, other_cost, notes, updated_at
		FROM dbl_operational_costs
		WHERE dbl_id = $1`, manifestID,
	).Scan(&c.ManifestID, &c.FuelCost, &c.TollCost, &c.PortFee, &c.DriverAllowance,
		&c.RepairCost, &c.OtherCost, &notes, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCostsNotFound
		}
		return nil, err
	}
	if notes.Valid {
		c.Notes = &notes.String
	}
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

func (r *repository) SaveCosts(ctx context.Context, c *OperationalCost) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dbl_operational_costs (
			dbl_id, fuel_cost, toll_cost, port_fee, driver_allowance,
			repair_cost, other_cost, notes, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (dbl_id) DO UPDATE SET
			fuel_cost = EXCLUDED.fuel_cost,
			toll_cost = EXCLUDED.toll_cost,
			port_fee = EXCLUDED.port_fee,
			driver_allowance = EXCLUDED.driver_allowance,
			repair_cost = EXCLUDED.repair_cost,
			other_cost = EXCLUDED.other_cost,
			notes = EXCLUDED.notes,
			updated_at = NOW()`,
		c.ManifestID, c.FuelCost, c.TollCost, c.PortFee, c.DriverAllowance,
		c.RepairCost, c.OtherCost, textOrNull(c.Notes))
	return err
}

func scanManifest(row interface{ Scan(dest ...any) error }) (*Manifest, error) {
	var m Manifest
	var driverPhone pgtype.Text
	var manifestDate, createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&m.ID, &m.Number, &manifestDate, &m.VehicleNumber, &m.DriverName, &driverPhone,
		&m.LocoAmount, &m.TekorAmount, &m.DriverFee, &m.Commission, &m.LoadingCost,
		&m.MiscCost, &m.AdminFee, &m.OtherCost, &m.TotalTagihan, &m.TotalBayar,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if driverPhone.Valid {
		m.DriverPhone = &driverPhone.String
	}
	m.ManifestDate = manifestDate.Time
	m.CreatedAt = createdAt.Time
	m.UpdatedAt = updatedAt.Time
	return &m, nil
}

func textOrNull(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}
