package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kargoline/kargoline/internal/platform/db"
)

var (
	ErrNotFound        = errors.New("invoices: not found")
	ErrPaymentNotFound = errors.New("invoices: payment not found")
)

// maxNumberRetries bounds the unique-violation retry loop on invoice
// number generation.
const maxNumberRetries = 5

// Repository defines data access for the invoice engine. Multi-statement
// operations run in a single transaction; shipment flag writes are always
// the last statement of their transaction.
type Repository interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	Create(ctx context.Context, inv *Invoice, shipmentIDs []int64) error
	ReplaceItems(ctx context.Context, inv *Invoice) error
	AddPayment(ctx context.Context, invoiceID int64, p Payment) (*Invoice, error)
	DeletePayment(ctx context.Context, paymentID int64) (*Invoice, error)
	UpdateTotals(ctx context.Context, inv *Invoice) error
	Cancel(ctx context.Context, invoiceID int64) (*Invoice, error)
	Delete(ctx context.Context, invoiceID int64) error
	ListOutstanding(ctx context.Context) ([]OutstandingShipment, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const invoiceColumns = `
	i.id, i.number, i.customer_id, c.name, i.subtotal, i.discount_amount,
	i.pph_percent, i.pph_amount, i.total_tagihan, i.paid_amount,
	i.remaining_amount, i.status, i.issued_at, i.due_date, i.paid_at,
	i.notes, i.created_at, i.updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.id = $1`, invoiceColumns)

	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if inv.Items, err = r.loadItems(ctx, id); err != nil {
		return nil, err
	}
	if inv.Payments, err = r.loadPayments(ctx, id); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *repository) loadItems(ctx context.Context, invoiceID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, shipment_id, description, quantity,
		       unit_price, item_discount, tax_type, sj_returned
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var shipmentID pgtype.Int8
		var taxType pgtype.Text
		if err := rows.Scan(&it.ID, &it.InvoiceID, &shipmentID, &it.Description,
			&it.Quantity, &it.UnitPrice, &it.ItemDiscount, &taxType, &it.SJReturned); err != nil {
			return nil, err
		}
		if shipmentID.Valid {
			it.ShipmentID = &shipmentID.Int64
		}
		if taxType.Valid {
			it.TaxType = &taxType.String
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *repository) loadPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, amount, payment_date, method,
		       bank_account, reference, notes, created_at
		FROM invoice_payments
		WHERE invoice_id = $1
		ORDER BY payment_date, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("i.status = $%d", argPos))
		args = append(args, string(*req.Status))
		argPos++
	}
	if req.Search != nil && *req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(i.number ILIKE $%d OR c.name ILIKE $%d)", argPos, argPos))
		args = append(args, "%"+*req.Search+"%")
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("i.issued_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("i.issued_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM invoices i
		JOIN customers c ON c.id = i.customer_id %s`, whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		%s
		ORDER BY i.issued_at DESC, i.id DESC
		LIMIT $%d OFFSET $%d`, invoiceColumns, whereClause, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

// Create inserts the invoice, its items and any initial payment in one
// transaction, generating a year-scoped number when none was supplied.
// Shipment flags are written last.
func (r *repository) Create(ctx context.Context, inv *Invoice, shipmentIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if inv.Number == "" {
			number, err := r.nextNumber(ctx, tx, inv.IssuedAt.Year())
			if err != nil {
				return err
			}
			inv.Number = number
		}

		id, err := r.insertInvoice(ctx, tx, inv)
		if err != nil {
			return err
		}
		inv.ID = id

		for i := range inv.Items {
			inv.Items[i].InvoiceID = id
			if err := insertItem(ctx, tx, &inv.Items[i]); err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
		}
		for i := range inv.Payments {
			inv.Payments[i].InvoiceID = id
			if err := insertPayment(ctx, tx, &inv.Payments[i]); err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		}

		if len(shipmentIDs) > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE shipments
				SET invoice_generated = TRUE, updated_at = NOW()
				WHERE id = ANY($1) AND invoice_generated = FALSE`, shipmentIDs); err != nil {
				return fmt.Errorf("mark shipments invoiced: %w", err)
			}
		}
		return nil
	})
}

// nextNumber computes the next INV/<year>/<seq> candidate under a row lock
// on the current year maximum. The caller's insert may still hit the unique
// index in a rare interleave; insertInvoice retries with a bumped sequence.
func (r *repository) nextNumber(ctx context.Context, tx pgx.Tx, year int) (string, error) {
	prefix := fmt.Sprintf("INV/%d/", year)

	// Ordered by the numeric suffix: lexicographic order diverges from the
	// sequence once it outgrows the zero padding.
	var last string
	err := tx.QueryRow(ctx, `
		SELECT number FROM invoices
		WHERE number LIKE $1
		ORDER BY (substring(number FROM '([0-9]+)$'))::int DESC NULLS LAST
		LIMIT 1
		FOR UPDATE`, prefix+"%").Scan(&last)

	seq := 1
	if err == nil {
		var y int
		if _, scanErr := fmt.Sscanf(last, "INV/%d/%d", &y, &seq); scanErr == nil {
			seq++
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lock invoice number: %w", err)
	}

	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// insertInvoice writes the invoice row, bumping the sequence on a number
// collision. Each attempt runs in its own savepoint: a failed statement
// aborts a Postgres transaction outright, so the retry only works when the
// violation is rolled back to a savepoint first.
func (r *repository) insertInvoice(ctx context.Context, tx pgx.Tx, inv *Invoice) (int64, error) {
	const query = `
		INSERT INTO invoices (
			number, customer_id, subtotal, discount_amount, pph_percent,
			pph_amount, total_tagihan, paid_amount, remaining_amount,
			status, issued_at, due_date, paid_at, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id`

	number := inv.Number
	for attempt := 0; ; attempt++ {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return 0, fmt.Errorf("insert invoice: %w", err)
		}
		var id int64
		err = sp.QueryRow(ctx, query,
			number, inv.CustomerID, inv.Subtotal, inv.DiscountAmount, inv.PPhPercent,
			inv.PPhAmount, inv.TotalTagihan, inv.PaidAmount, inv.RemainingAmount,
			string(inv.Status), inv.IssuedAt, timeOrNull(inv.DueDate), timeOrNull(inv.PaidAt),
			textOrNull(inv.Notes),
		).Scan(&id)
		if err == nil {
			if err := sp.Commit(ctx); err != nil {
				return 0, fmt.Errorf("insert invoice: %w", err)
			}
			inv.Number = number
			return id, nil
		}
		_ = sp.Rollback(ctx)
		if !db.IsUniqueViolation(err) || attempt >= maxNumberRetries {
			return 0, fmt.Errorf("insert invoice: %w", err)
		}
		// Number collision: bump the sequence and try again.
		var y, seq int
		if _, scanErr := fmt.Sscanf(number, "INV/%d/%d", &y, &seq); scanErr != nil {
			return 0, fmt.Errorf("insert invoice: %w", err)
		}
		number = fmt.Sprintf("INV/%d/%04d", y, seq+1)
	}
}

func insertItem(ctx context.Context, tx pgx.Tx, it *Item) error {
	return tx.QueryRow(ctx, `
		INSERT INTO invoice_items (
			invoice_id, shipment_id, description, quantity, unit_price,
			item_discount, tax_type, sj_returned
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		it.InvoiceID, int8OrNull(it.ShipmentID), it.Description, it.Quantity,
		it.UnitPrice, it.ItemDiscount, textOrNull(it.TaxType), it.SJReturned,
	).Scan(&it.ID)
}

func insertPayment(ctx context.Context, tx pgx.Tx, p *Payment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO invoice_payments (
			invoice_id, amount, payment_date, method, bank_account,
			reference, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id`,
		p.InvoiceID, p.Amount, p.PaymentDate, p.Method,
		textOrNull(p.BankAccount), textOrNull(p.Reference), textOrNull(p.Notes),
	).Scan(&p.ID)
}

// ReplaceItems swaps the full item set and persists the recomputed totals
// in one transaction. Shipment writes come last: references dropped from
// the set release their invoice_generated flag, newly attached ones gain
// it, and items with a true sj_returned push the flag onto their shipment.
func (r *repository) ReplaceItems(ctx context.Context, inv *Invoice) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		before, err := itemShipmentIDs(ctx, tx, inv.ID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, "DELETE FROM invoice_items WHERE invoice_id = $1", inv.ID); err != nil {
			return fmt.Errorf("clear items: %w", err)
		}
		for i := range inv.Items {
			inv.Items[i].InvoiceID = inv.ID
			if err := insertItem(ctx, tx, &inv.Items[i]); err != nil {
				return fmt.Errorf("insert item: %w", err)
			}
		}
		if err := updateTotalsTx(ctx, tx, inv); err != nil {
			return err
		}

		after := map[int64]bool{}
		for _, it := range inv.Items {
			if it.ShipmentID != nil {
				after[*it.ShipmentID] = true
			}
		}
		var released, attached []int64
		beforeSet := map[int64]bool{}
		for _, id := range before {
			beforeSet[id] = true
			if !after[id] {
				released = append(released, id)
			}
		}
		for id := range after {
			if !beforeSet[id] {
				attached = append(attached, id)
			}
		}
		if len(released) > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE shipments
				SET invoice_generated = FALSE, updated_at = NOW()
				WHERE id = ANY($1)`, released); err != nil {
				return fmt.Errorf("release shipments: %w", err)
			}
		}
		if len(attached) > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE shipments
				SET invoice_generated = TRUE, updated_at = NOW()
				WHERE id = ANY($1) AND invoice_generated = FALSE`, attached); err != nil {
				return fmt.Errorf("mark shipments invoiced: %w", err)
			}
		}

		for _, it := range inv.Items {
			if it.ShipmentID == nil || !it.SJReturned {
				continue
			}
			if _, err := tx.Exec(ctx, `
				UPDATE shipments
				SET sj_returned = TRUE,
				    sj_returned_at = CASE WHEN sj_returned THEN sj_returned_at ELSE NOW() END,
				    updated_at = NOW()
				WHERE id = $1`, *it.ShipmentID); err != nil {
				return fmt.Errorf("push sj_returned: %w", err)
			}
		}
		return nil
	})
}

// AddPayment appends a payment row and recomputes the running totals from
// the sum of all rows, not by incrementing the stored value.
func (r *repository) AddPayment(ctx context.Context, invoiceID int64, p Payment) (*Invoice, error) {
	var updated *Invoice
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		p.InvoiceID = invoiceID
		if err := insertPayment(ctx, tx, &p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		paidSum, err := sumPayments(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		ApplyPaidAmount(inv, paidSum, time.Now().UTC())

		if err := updateTotalsTx(ctx, tx, inv); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, updated.ID)
}

// DeletePayment removes one row and recomputes totals from the rows left.
func (r *repository) DeletePayment(ctx context.Context, paymentID int64) (*Invoice, error) {
	var invoiceID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			"SELECT invoice_id FROM invoice_payments WHERE id = $1", paymentID,
		).Scan(&invoiceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return err
		}

		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM invoice_payments WHERE id = $1", paymentID); err != nil {
			return fmt.Errorf("delete payment: %w", err)
		}

		paidSum, err := sumPayments(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		ApplyPaidAmount(inv, paidSum, time.Now().UTC())
		return updateTotalsTx(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, invoiceID)
}

func (r *repository) UpdateTotals(ctx context.Context, inv *Invoice) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return updateTotalsTx(ctx, tx, inv)
	})
}

// Cancel marks the invoice cancelled and releases every shipment its items
// referenced. The shipment update is the transaction's last statement.
func (r *repository) Cancel(ctx context.Context, invoiceID int64) (*Invoice, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		inv, err := lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		inv.Status = StatusCancelled
		if err := updateTotalsTx(ctx, tx, inv); err != nil {
			return err
		}
		return releaseShipmentsTx(ctx, tx, invoiceID)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, invoiceID)
}

// Delete removes the invoice with its items and payments, releasing the
// invoice_generated flag on referenced shipments as the final statement.
func (r *repository) Delete(ctx context.Context, invoiceID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := lockInvoice(ctx, tx, invoiceID); err != nil {
			return err
		}

		// Collect referenced shipments before the items go away.
		shipmentIDs, err := itemShipmentIDs(ctx, tx, invoiceID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, "DELETE FROM invoice_payments WHERE invoice_id = $1", invoiceID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM invoice_items WHERE invoice_id = $1", invoiceID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM invoices WHERE id = $1", invoiceID); err != nil {
			return err
		}

		if len(shipmentIDs) > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE shipments
				SET invoice_generated = FALSE, updated_at = NOW()
				WHERE id = ANY($1)`, shipmentIDs); err != nil {
				return fmt.Errorf("release shipments: %w", err)
			}
		}
		return nil
	})
}

// ListOutstanding joins shipments against their live invoice, if any. The
// lateral subquery picks at most one non-cancelled invoice per shipment, so
// item links left behind by a cancelled invoice neither duplicate the row
// nor make an invoiced shipment look un-invoiced.
func (r *repository) ListOutstanding(ctx context.Context) ([]OutstandingShipment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.spb_number, COALESCE(c.name, s.customer_name),
		       s.destination, s.nominal,
		       li.id, li.number, li.status, li.subtotal, li.remaining_amount
		FROM shipments s
		LEFT JOIN customers c ON c.id = s.customer_id
		LEFT JOIN LATERAL (
			SELECT i.id, i.number, i.status, i.subtotal, i.remaining_amount
			FROM invoice_items ii
			JOIN invoices i ON i.id = ii.invoice_id
			WHERE ii.shipment_id = s.id AND i.status <> 'cancelled'
			ORDER BY i.id DESC
			LIMIT 1
		) li ON TRUE
		WHERE s.nominal > 0
		  AND (li.id IS NULL OR li.status IN ('pending', 'partial'))
		ORDER BY s.shipment_date, s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutstandingShipment
	for rows.Next() {
		var row OutstandingShipment
		var customerName pgtype.Text
		var invoiceID pgtype.Int8
		var invoiceNumber, invoiceStatus pgtype.Text
		var subtotal, remaining pgtype.Float8

		if err := rows.Scan(&row.ShipmentID, &row.SPBNumber, &customerName,
			&row.Destination, &row.Nominal,
			&invoiceID, &invoiceNumber, &invoiceStatus, &subtotal, &remaining); err != nil {
			return nil, err
		}
		if customerName.Valid {
			row.CustomerName = &customerName.String
		}
		if invoiceID.Valid {
			row.InvoiceID = &invoiceID.Int64
			if invoiceNumber.Valid {
				row.InvoiceNumber = &invoiceNumber.String
			}
			if invoiceStatus.Valid {
				status := Status(invoiceStatus.String)
				row.InvoiceStatus = &status
			}
			row.RemainingAmount = ProRatedRemaining(row.Nominal, subtotal.Float64, remaining.Float64)
		} else {
			row.RemainingAmount = row.Nominal
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ProRatedRemaining attributes a share of an invoice's remaining balance to
// one shipment by its fraction of the subtotal. With a zero subtotal the
// full remaining amount is reported instead.
func ProRatedRemaining(nominal, subtotal, remaining float64) float64 {
	if subtotal > 0 {
		return nominal / subtotal * remaining
	}
	return remaining
}

// itemShipmentIDs collects the distinct shipments the invoice's items
// currently reference.
func itemShipmentIDs(ctx context.Context, tx pgx.Tx, invoiceID int64) ([]int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT shipment_id FROM invoice_items
		WHERE invoice_id = $1 AND shipment_id IS NOT NULL`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func lockInvoice(ctx context.Context, tx pgx.Tx, id int64) (*Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.id = $1
		FOR UPDATE OF i`, invoiceColumns)

	inv, err := scanInvoice(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func sumPayments(ctx context.Context, tx pgx.Tx, invoiceID int64) (float64, error) {
	var sum float64
	err := tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM invoice_payments WHERE invoice_id = $1",
		invoiceID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return sum, nil
}

func updateTotalsTx(ctx context.Context, tx pgx.Tx, inv *Invoice) error {
	tag, err := tx.Exec(ctx, `
		UPDATE invoices
		SET subtotal = $2, discount_amount = $3, pph_percent = $4,
		    pph_amount = $5, total_tagihan = $6, paid_amount = $7,
		    remaining_amount = $8, status = $9, paid_at = $10, updated_at = NOW()
		WHERE id = $1`,
		inv.ID, inv.Subtotal, inv.DiscountAmount, inv.PPhPercent,
		inv.PPhAmount, inv.TotalTagihan, inv.PaidAmount,
		inv.RemainingAmount, string(inv.Status), timeOrNull(inv.PaidAt))
	if err != nil {
		return fmt.Errorf("update invoice totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func releaseShipmentsTx(ctx context.Context, tx pgx.Tx, invoiceID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE shipments
		SET invoice_generated = FALSE, updated_at = NOW()
		WHERE id IN (
			SELECT shipment_id FROM invoice_items
			WHERE invoice_id = $1 AND shipment_id IS NOT NULL
		)`, invoiceID)
	if err != nil {
		return fmt.Errorf("release shipments: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var inv Invoice
	var status string
	var dueDate, paidAt pgtype.Timestamptz
	var notes pgtype.Text
	var issuedAt, createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &inv.CustomerName,
		&inv.Subtotal, &inv.DiscountAmount, &inv.PPhPercent, &inv.PPhAmount,
		&inv.TotalTagihan, &inv.PaidAmount, &inv.RemainingAmount, &status,
		&issuedAt, &dueDate, &paidAt, &notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = Status(status)
	inv.IssuedAt = issuedAt.Time
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}
	if notes.Valid {
		inv.Notes = &notes.String
	}
	inv.CreatedAt = createdAt.Time
	inv.UpdatedAt = updatedAt.Time
	return &inv, nil
}

func scanPayment(row rowScanner) (*Payment, error) {
	var p Payment
	var bankAccount, reference, notes pgtype.Text
	var paymentDate, createdAt pgtype.Timestamptz

	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &paymentDate, &p.Method,
		&bankAccount, &reference, &notes, &createdAt)
	if err != nil {
		return nil, err
	}
	p.PaymentDate = paymentDate.Time
	p.CreatedAt = createdAt.Time
	if bankAccount.Valid {
		p.BankAccount = &bankAccount.String
	}
	if reference.Valid {
		p.Reference = &reference.String
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	return &p, nil
}

func int8OrNull(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func textOrNull(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func timeOrNull(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
