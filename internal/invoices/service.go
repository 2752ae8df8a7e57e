package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kargoline/kargoline/internal/customers"
	"github.com/kargoline/kargoline/internal/money"
	"github.com/kargoline/kargoline/internal/shipments"
)

// ErrValidation marks caller mistakes: unresolvable customer, non-positive
// totals, payments against cancelled invoices.
var ErrValidation = errors.New("invoices: validation failed")

// CustomerResolver finds or creates the billing counterparty.
type CustomerResolver interface {
	Resolve(ctx context.Context, id *int64, name string) (*customers.Customer, error)
}

// ShipmentDirectory is the slice of the shipment ledger the engine needs
// for resolving item references.
type ShipmentDirectory interface {
	Get(ctx context.Context, id int64) (*shipments.Shipment, error)
	GetBySPB(ctx context.Context, spb string) (*shipments.Shipment, error)
}

// Service is the invoice lifecycle engine.
type Service struct {
	repo      Repository
	customers CustomerResolver
	shipments ShipmentDirectory
}

// NewService builds a Service instance.
func NewService(repo Repository, resolver CustomerResolver, directory ShipmentDirectory) *Service {
	return &Service{repo: repo, customers: resolver, shipments: directory}
}

// Get returns one invoice with items and payments.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns invoice headers matching the filter plus a total count.
func (s *Service) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	return s.repo.List(ctx, req)
}

// Create resolves the customer, computes every derived field, and persists
// invoice, items, initial payment and shipment flags in one transaction.
func (s *Service) Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	customer, err := s.customers.Resolve(ctx, req.CustomerID, req.CustomerName)
	if err != nil {
		return nil, fmt.Errorf("%w: no customer resolvable: %v", ErrValidation, err)
	}

	items, shipmentIDs, err := s.resolveItems(ctx, req.Items, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	issuedAt := now
	if req.IssuedAt != nil {
		issuedAt = *req.IssuedAt
	}

	inv := &Invoice{
		CustomerID:     customer.ID,
		CustomerName:   customer.Name,
		DiscountAmount: req.DiscountAmount,
		PPhPercent:     req.PPhPercent,
		Status:         StatusPending,
		IssuedAt:       issuedAt,
		DueDate:        req.DueDate,
		Notes:          req.Notes,
		Items:          items,
	}

	if len(items) == 0 && req.AmountOverride != nil {
		// Ad hoc invoice: the supplied amount is billed directly. Item-based
		// computation takes over as soon as items are attached later.
		inv.TotalTagihan = money.Round2(*req.AmountOverride)
		inv.RemainingAmount = inv.TotalTagihan
	} else {
		Recalculate(inv)
		if inv.TotalTagihan <= 0 {
			return nil, fmt.Errorf("%w: computed total is not positive", ErrValidation)
		}
	}

	if req.InitialPaidAmount > 0 {
		inv.Payments = append(inv.Payments, Payment{
			Amount:      req.InitialPaidAmount,
			PaymentDate: issuedAt,
			Method:      "initial",
		})
		ApplyPaidAmount(inv, req.InitialPaidAmount, now)
	}

	if err := s.repo.Create(ctx, inv, shipmentIDs); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return s.repo.Get(ctx, inv.ID)
}

// SetItems wholesale-replaces the invoice's line items and recomputes the
// derived fields against the existing discount, withholding and payments.
func (s *Service) SetItems(ctx context.Context, id int64, inputs []ItemInput) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Shipments already on this invoice stay attachable; only references
	// held by another live invoice are conflicts.
	own := map[int64]bool{}
	for _, it := range inv.Items {
		if it.ShipmentID != nil {
			own[*it.ShipmentID] = true
		}
	}

	items, _, err := s.resolveItems(ctx, inputs, own)
	if err != nil {
		return nil, err
	}

	inv.Items = items
	Recalculate(inv)
	ApplyPaidAmount(inv, inv.PaidAmount, time.Now().UTC())

	if err := s.repo.ReplaceItems(ctx, inv); err != nil {
		return nil, fmt.Errorf("replace items: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// RecordPayment appends a payment and recomputes the running totals from
// the full payment log. Cancelled invoices do not accept payments.
func (s *Service) RecordPayment(ctx context.Context, id int64, req RecordPaymentRequest) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: invoice %s is cancelled", ErrValidation, inv.Number)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}

	paymentDate := time.Now().UTC()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		method = "transfer"
	}

	return s.repo.AddPayment(ctx, id, Payment{
		Amount:      req.Amount,
		PaymentDate: paymentDate,
		Method:      method,
		BankAccount: req.BankAccount,
		Reference:   req.Reference,
		Notes:       req.Notes,
	})
}

// DeletePayment removes a payment row; totals come back from the sum of
// the rows that remain, never from decrementing the stored value.
func (s *Service) DeletePayment(ctx context.Context, paymentID int64) (*Invoice, error) {
	return s.repo.DeletePayment(ctx, paymentID)
}

// UpdatePPhPercent recomputes withholding against the stored subtotal.
func (s *Service) UpdatePPhPercent(ctx context.Context, id int64, percent float64) (*Invoice, error) {
	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("%w: pph percent out of range", ErrValidation)
	}

	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	inv.PPhPercent = percent
	// An ad hoc invoice carries a directly supplied total with no subtotal;
	// re-deriving from a zero subtotal would wipe it out.
	if inv.Subtotal > 0 || len(inv.Items) > 0 {
		after := money.AfterDiscount(inv.Subtotal, inv.DiscountAmount)
		inv.PPhAmount = money.PPhAmount(after, percent)
		inv.TotalTagihan = money.TotalTagihan(after, inv.PPhAmount)
	}
	ApplyPaidAmount(inv, inv.PaidAmount, time.Now().UTC())

	if err := s.repo.UpdateTotals(ctx, inv); err != nil {
		return nil, fmt.Errorf("update pph: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Cancel marks the invoice cancelled and releases its shipments for
// re-invoicing. Cancelled is sticky.
func (s *Service) Cancel(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Cancel(ctx, id)
}

// Delete removes the invoice entirely, always releasing the
// invoice_generated flag on every shipment its items referenced.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// ListOutstanding reports shipments that still carry an uncollected value.
func (s *Service) ListOutstanding(ctx context.Context) ([]OutstandingShipment, error) {
	return s.repo.ListOutstanding(ctx)
}

// resolveItems converts item inputs into persistable items. Shipments may
// be referenced by id or SPB number; a shipment with a non-positive nominal
// is never attachable, and one held by a live invoice only when its id is
// in the exempt set.
func (s *Service) resolveItems(ctx context.Context, inputs []ItemInput, exempt map[int64]bool) ([]Item, []int64, error) {
	items := make([]Item, 0, len(inputs))
	var shipmentIDs []int64

	for _, in := range inputs {
		if strings.TrimSpace(in.Description) == "" {
			return nil, nil, fmt.Errorf("%w: item description is required", ErrValidation)
		}

		item := Item{
			Description:  strings.TrimSpace(in.Description),
			Quantity:     in.Quantity,
			UnitPrice:    in.UnitPrice,
			ItemDiscount: in.ItemDiscount,
			TaxType:      in.TaxType,
			SJReturned:   in.SJReturned,
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		if item.ItemDiscount < 0 {
			item.ItemDiscount = 0
		}

		var sh *shipments.Shipment
		var err error
		switch {
		case in.ShipmentID != nil:
			sh, err = s.shipments.Get(ctx, *in.ShipmentID)
		case in.SPBNumber != nil && *in.SPBNumber != "":
			sh, err = s.shipments.GetBySPB(ctx, *in.SPBNumber)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: shipment reference: %v", ErrValidation, err)
		}
		if sh != nil {
			if sh.Nominal <= 0 {
				return nil, nil, fmt.Errorf("%w: shipment %s has no billable value", ErrValidation, sh.SPBNumber)
			}
			if sh.InvoiceGenerated && !exempt[sh.ID] {
				return nil, nil, fmt.Errorf("%w: shipment %s is already invoiced", ErrValidation, sh.SPBNumber)
			}
			item.ShipmentID = &sh.ID
			shipmentIDs = append(shipmentIDs, sh.ID)
		}

		items = append(items, item)
	}
	return items, shipmentIDs, nil
}
