package invoices

import (
	"time"

	"github.com/kargoline/kargoline/internal/money"
)

// Status is the payment state of an invoice. Cancelled is sticky: once
// cancelled, no payment or recomputation derives the status away.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Invoice is a bill to one customer with line items and an append-only
// payment log. Monetary fields are derived, never entered directly, except
// for the ad hoc amount override on creation.
type Invoice struct {
	ID              int64      `json:"id"`
	Number          string     `json:"number"`
	CustomerID      int64      `json:"customer_id"`
	CustomerName    string     `json:"customer_name,omitempty"`
	Subtotal        float64    `json:"subtotal"`
	DiscountAmount  float64    `json:"discount_amount"`
	PPhPercent      float64    `json:"pph_percent"`
	PPhAmount       float64    `json:"pph_amount"`
	TotalTagihan    float64    `json:"total_tagihan"`
	PaidAmount      float64    `json:"paid_amount"`
	RemainingAmount float64    `json:"remaining_amount"`
	Status          Status     `json:"status"`
	IssuedAt        time.Time  `json:"issued_at"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Items    []Item    `json:"items,omitempty"`
	Payments []Payment `json:"payments,omitempty"`
}

// Item is one invoice line, optionally tied to a shipment. A true
// SJReturned is pushed onto the linked shipment on write.
type Item struct {
	ID           int64   `json:"id"`
	InvoiceID    int64   `json:"invoice_id"`
	ShipmentID   *int64  `json:"shipment_id,omitempty"`
	Description  string  `json:"description"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	ItemDiscount float64 `json:"item_discount"`
	TaxType      *string `json:"tax_type,omitempty"`
	SJReturned   bool    `json:"sj_returned"`
}

// Payment is one row in the append-only payment log.
type Payment struct {
	ID          int64     `json:"id"`
	InvoiceID   int64     `json:"invoice_id"`
	Amount      float64   `json:"amount"`
	PaymentDate time.Time `json:"payment_date"`
	Method      string    `json:"method"`
	BankAccount *string   `json:"bank_account,omitempty"`
	Reference   *string   `json:"reference,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ItemInput is one requested line item. A shipment may be referenced by id
// or by its SPB number; the SPB form is resolved before persisting.
type ItemInput struct {
	Description  string  `json:"description" validate:"required,max=500"`
	Quantity     float64 `json:"quantity" validate:"gte=0"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	ItemDiscount float64 `json:"item_discount" validate:"gte=0"`
	ShipmentID   *int64  `json:"shipment_id,omitempty" validate:"omitempty,gt=0"`
	SPBNumber    *string `json:"spb_number,omitempty" validate:"omitempty,max=50"`
	TaxType      *string `json:"tax_type,omitempty" validate:"omitempty,max=50"`
	SJReturned   bool    `json:"sj_returned"`
}

// CreateInvoiceRequest carries fields for creating an invoice. AmountOverride
// supports the ad hoc case: an invoice with no items billed at a supplied
// amount. It is ignored as soon as items are present.
type CreateInvoiceRequest struct {
	CustomerID        *int64      `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CustomerName      string      `json:"customer_name,omitempty" validate:"omitempty,max=200"`
	Items             []ItemInput `json:"items" validate:"dive"`
	DiscountAmount    float64     `json:"discount_amount" validate:"gte=0"`
	PPhPercent        float64     `json:"pph_percent" validate:"gte=0,lte=100"`
	InitialPaidAmount float64     `json:"initial_paid_amount" validate:"gte=0"`
	AmountOverride    *float64    `json:"amount_override,omitempty" validate:"omitempty,gt=0"`
	IssuedAt          *time.Time  `json:"issued_at,omitempty"`
	DueDate           *time.Time  `json:"due_date,omitempty"`
	Notes             *string     `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// RecordPaymentRequest carries fields for appending a payment.
type RecordPaymentRequest struct {
	Amount      float64    `json:"amount" validate:"required,gt=0"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
	Method      string     `json:"method" validate:"required,max=50"`
	BankAccount *string    `json:"bank_account,omitempty" validate:"omitempty,max=100"`
	Reference   *string    `json:"reference,omitempty" validate:"omitempty,max=100"`
	Notes       *string    `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// ListInvoicesRequest filters the invoice listing.
type ListInvoicesRequest struct {
	Status   *Status    `json:"status,omitempty"`
	Search   *string    `json:"search,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Limit    int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset   int        `json:"offset" validate:"gte=0"`
}

// OutstandingShipment is one row of the outstanding report. The remaining
// amount is pro-rated by the shipment's share of the invoice subtotal; with
// mixed-value shipments on one invoice this is an approximation.
type OutstandingShipment struct {
	ShipmentID      int64   `json:"shipment_id"`
	SPBNumber       string  `json:"spb_number"`
	CustomerName    *string `json:"customer_name,omitempty"`
	Destination     string  `json:"destination"`
	Nominal         float64 `json:"nominal"`
	InvoiceID       *int64  `json:"invoice_id,omitempty"`
	InvoiceNumber   *string `json:"invoice_number,omitempty"`
	InvoiceStatus   *Status `json:"invoice_status,omitempty"`
	RemainingAmount float64 `json:"remaining_amount"`
}

// DeriveStatus maps the running totals onto a Status. Cancelled is sticky
// and never derived away.
func DeriveStatus(current Status, paid, remaining float64) Status {
	if current == StatusCancelled {
		return StatusCancelled
	}
	switch {
	case remaining <= 0 && paid > 0:
		return StatusPaid
	case paid > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

// Recalculate rebuilds every derived monetary field from the invoice's
// items, discount, withholding percent and paid amount.
func Recalculate(inv *Invoice) {
	lines := make([]money.Line, len(inv.Items))
	for i, it := range inv.Items {
		lines[i] = money.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice, ItemDiscount: it.ItemDiscount}
	}
	inv.Subtotal = money.Subtotal(lines)
	after := money.AfterDiscount(inv.Subtotal, inv.DiscountAmount)
	inv.PPhAmount = money.PPhAmount(after, inv.PPhPercent)
	inv.TotalTagihan = money.TotalTagihan(after, inv.PPhAmount)
	inv.RemainingAmount = money.Remaining(inv.TotalTagihan, inv.PaidAmount)
	inv.Status = DeriveStatus(inv.Status, inv.PaidAmount, inv.RemainingAmount)
}

// ApplyPaidAmount sets the paid total from a fresh sum over payment rows
// and re-derives the dependent fields. The paid_at timestamp is stamped the
// first time the invoice becomes paid and never overwritten.
func ApplyPaidAmount(inv *Invoice, paidSum float64, now time.Time) {
	inv.PaidAmount = paidSum
	inv.RemainingAmount = money.Remaining(inv.TotalTagihan, inv.PaidAmount)
	inv.Status = DeriveStatus(inv.Status, inv.PaidAmount, inv.RemainingAmount)
	if inv.Status == StatusPaid && inv.PaidAt == nil {
		inv.PaidAt = &now
	}
}
