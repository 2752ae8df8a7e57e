package shipments

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
	ErrNotFound      = errors.New("shipments: not found")
	ErrAlreadyExists = errors.New("shipments: already exists")
	ErrInUse         = errors.New("shipments: referenced by invoice items")
)

// Repository defines data access for the shipment ledger.
type Repository interface {
	Get(ctx context.Context, id int64) (*Shipment, error)
	GetBySPB(ctx context.Context, spb string) (*Shipment, error)
	List(ctx context.Context, req ListShipmentsRequest) ([]Shipment, int, error)
	Create(ctx context.Context, s Shipment) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	Delete(ctx context.Context, id int64) error
	FindInvoiceable(ctx context.Context, filter InvoiceableFilter) ([]Shipment, error)
	MarkInvoiced(ctx context.Context, ids []int64) error
	ReleaseInvoiced(ctx context.Context, ids []int64) error
	SetReturned(ctx context.Context, id int64, returned bool) error
	AttachPOD(ctx context.Context, id int64, key string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const shipmentColumns = `
	id, spb_number, customer_id, customer_name, origin, destination,
	goods_description, nominal, colli, weight_kg, dbl_id,
	invoice_generated, sj_returned, sj_returned_at, pod_key,
	shipment_date, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Shipment, error) {
	query := fmt.Sprintf("SELECT %s FROM shipments WHERE id = $1", shipmentColumns)
	s, err := scanShipment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *repository) GetBySPB(ctx context.Context, spb string) (*Shipment, error) {
	query := fmt.Sprintf("SELECT %s FROM shipments WHERE spb_number = $1", shipmentColumns)
	s, err := scanShipment(r.pool.QueryRow(ctx, query, spb))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *repository) List(ctx context.Context, req ListShipmentsRequest) ([]Shipment, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.ManifestID != nil {
		conditions = append(conditions, fmt.Sprintf("dbl_id = $%d", argPos))
		args = append(args, *req.ManifestID)
		argPos++
	}
	if req.Unassigned {
		conditions = append(conditions, "dbl_id IS NULL")
	}
	if req.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argPos))
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Destination != nil && *req.Destination != "" {
		conditions = append(conditions, fmt.Sprintf("destination ILIKE $%d", argPos))
		args = append(args, *req.Destination)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("shipment_date >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("shipment_date <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}
	if req.Search != nil && *req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(spb_number ILIKE $%d OR customer_name ILIKE $%d OR goods_description ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+*req.Search+"%")
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM shipments %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM shipments
		%s
		ORDER BY shipment_date DESC, id DESC
		LIMIT $%d OFFSET $%d`, shipmentColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *s)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, s Shipment) (int64, error) {
	const query = `
		INSERT INTO shipments (
			spb_number, customer_id, customer_name, origin, destination,
			goods_description, nominal, colli, weight_kg,
			shipment_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		s.SPBNumber,
		int8OrNull(s.CustomerID),
		textPtrOrNull(s.CustomerName),
		s.Origin,
		s.Destination,
		textPtrOrNull(s.GoodsDescription),
		s.Nominal,
		s.Colli,
		s.WeightKg,
		s.ShipmentDate,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]any) error {
	query := "UPDATE shipments SET updated_at = NOW()"
	var args []any
	argPos := 1

	cols := []string{
		"customer_id", "customer_name", "origin", "destination",
		"goods_description", "nominal", "colli", "weight_kg",
	}
	for _, col := range cols {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a shipment unless invoice items still reference it.
// The foreign key is RESTRICT; the pre-check gives a clean domain error.
func (r *repository) Delete(ctx context.Context, id int64) error {
	var refs int
	if err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM invoice_items WHERE shipment_id = $1", id,
	).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return ErrInUse
	}

	tag, err := r.pool.Exec(ctx, "DELETE FROM shipments WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindInvoiceable returns shipments with a positive nominal that are not
// tied to a live invoice. Cancelling or deleting an invoice releases the
// invoice_generated flag, so the flag alone is authoritative here.
func (r *repository) FindInvoiceable(ctx context.Context, filter InvoiceableFilter) ([]Shipment, error) {
	conditions := []string{"nominal > 0", "invoice_generated = FALSE"}
	var args []any
	argPos := 1

	if filter.ManifestID != nil {
		conditions = append(conditions, fmt.Sprintf("dbl_id = $%d", argPos))
		args = append(args, *filter.ManifestID)
		argPos++
	}
	if filter.Destination != nil && *filter.Destination != "" {
		conditions = append(conditions, fmt.Sprintf("destination ILIKE $%d", argPos))
		args = append(args, *filter.Destination)
		argPos++
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("shipment_date >= $%d", argPos))
		args = append(args, *filter.DateFrom)
		argPos++
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("shipment_date <= $%d", argPos))
		args = append(args, *filter.DateTo)
		argPos++
	}

	query := fmt.Sprintf(`
		SELECT %s FROM shipments
		WHERE %s
		ORDER BY shipment_date, id`, shipmentColumns, strings.Join(conditions, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// MarkInvoiced flags shipments as invoiced. Idempotent: already-flagged
// rows are left untouched.
func (r *repository) MarkInvoiced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE shipments
		SET invoice_generated = TRUE, updated_at = NOW()
		WHERE id = ANY($1) AND invoice_generated = FALSE`, ids)
	return err
}

// ReleaseInvoiced clears the invoiced flag, used when an invoice is
// deleted or cancelled.
func (r *repository) ReleaseInvoiced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE shipments
		SET invoice_generated = FALSE, updated_at = NOW()
		WHERE id = ANY($1)`, ids)
	return err
}

// SetReturned records the Surat Jalan return state. The timestamp is set
// only on the false-to-true transition and cleared on the way back.
func (r *repository) SetReturned(ctx context.Context, id int64, returned bool) error {
	var err error
	if returned {
		_, err = r.pool.Exec(ctx, `
			UPDATE shipments
			SET sj_returned = TRUE,
			    sj_returned_at = CASE WHEN sj_returned THEN sj_returned_at ELSE NOW() END,
			    updated_at = NOW()
			WHERE id = $1`, id)
	} else {
		_, err = r.pool.Exec(ctx, `
			UPDATE shipments
			SET sj_returned = FALSE, sj_returned_at = NULL, updated_at = NOW()
			WHERE id = $1`, id)
	}
	return err
}

func (r *repository) AttachPOD(ctx context.Context, id int64, key string) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE shipments SET pod_key = $2, updated_at = NOW() WHERE id = $1", id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (*Shipment, error) {
	var s Shipment
	var customerID, manifestID pgtype.Int8
	var customerName, goodsDescription, podKey pgtype.Text
	var sjReturnedAt pgtype.Timestamptz
	var shipmentDate, createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&s.ID, &s.SPBNumber, &customerID, &customerName, &s.Origin, &s.Destination,
		&goodsDescription, &s.Nominal, &s.Colli, &s.WeightKg, &manifestID,
		&s.InvoiceGenerated, &s.SJReturned, &sjReturnedAt, &podKey,
		&shipmentDate, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if customerID.Valid {
		s.CustomerID = &customerID.Int64
	}
	if manifestID.Valid {
		s.ManifestID = &manifestID.Int64
	}
	if customerName.Valid {
		s.CustomerName = &customerName.String
	}
	if goodsDescription.Valid {
		s.GoodsDescription = &goodsDescription.String
	}
	if podKey.Valid {
		s.PODKey = &podKey.String
	}
	if sjReturnedAt.Valid {
		s.SJReturnedAt = &sjReturnedAt.Time
	}
	s.ShipmentDate = shipmentDate.Time
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	return &s, nil
}

func int8OrNull(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func textPtrOrNull(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}
