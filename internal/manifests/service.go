package manifests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kargoline/kargoline/internal/customers"
	"github.com/kargoline/kargoline/internal/invoices"
)

// ErrValidation marks caller mistakes on manifest operations.
var ErrValidation = errors.New("manifests: validation failed")

// InvoiceEngine is the slice of the invoice lifecycle engine used by
// manifest-driven invoice generation.
type InvoiceEngine interface {
	Create(ctx context.Context, req invoices.CreateInvoiceRequest) (*invoices.Invoice, error)
	Delete(ctx context.Context, id int64) error
}

// Service handles manifest business logic.
type Service struct {
	repo   Repository
	engine InvoiceEngine
}

// NewService builds a Service instance.
func NewService(repo Repository, engine InvoiceEngine) *Service {
	return &Service{repo: repo, engine: engine}
}

// Get returns one manifest.
func (s *Service) Get(ctx context.Context, id int64) (*Manifest, error) {
	return s.repo.Get(ctx, id)
}

// List returns manifest headers with shipment counts.
func (s *Service) List(ctx context.Context, req ListManifestsRequest) ([]Summary, int, error) {
	return s.repo.List(ctx, req)
}

// Shipments returns the manifest's shipments in loading order.
func (s *Service) Shipments(ctx context.Context, id int64) ([]ManifestShipment, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Shipments(ctx, id)
}

// Create registers a manifest, generating its sequence number when none
// was supplied and computing both derived totals up front.
func (s *Service) Create(ctx context.Context, req CreateManifestRequest) (*Manifest, error) {
	if strings.TrimSpace(req.VehicleNumber) == "" {
		return nil, fmt.Errorf("%w: vehicle number is required", ErrValidation)
	}
	if strings.TrimSpace(req.DriverName) == "" {
		return nil, fmt.Errorf("%w: driver name is required", ErrValidation)
	}

	manifestDate := time.Now().UTC()
	if req.ManifestDate != nil {
		manifestDate = *req.ManifestDate
	}

	m := &Manifest{
		Number:        strings.TrimSpace(req.Number),
		ManifestDate:  manifestDate,
		VehicleNumber: strings.TrimSpace(req.VehicleNumber),
		DriverName:    strings.TrimSpace(req.DriverName),
		DriverPhone:   req.DriverPhone,
	}
	applyCostFields(m, req.CostFields)

	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create manifest: %w", err)
	}
	return s.repo.Get(ctx, m.ID)
}

// Update merges header and cost fields onto the stored manifest and
// recomputes the derived totals from the merged values, never from the
// supplied fields alone.
func (s *Service) Update(ctx context.Context, id int64, req UpdateManifestRequest) (*Manifest, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.ManifestDate != nil {
		m.ManifestDate = *req.ManifestDate
	}
	if req.VehicleNumber != nil && strings.TrimSpace(*req.VehicleNumber) != "" {
		m.VehicleNumber = strings.TrimSpace(*req.VehicleNumber)
	}
	if req.DriverName != nil && strings.TrimSpace(*req.DriverName) != "" {
		m.DriverName = strings.TrimSpace(*req.DriverName)
	}
	if req.DriverPhone != nil {
		m.DriverPhone = req.DriverPhone
	}
	applyCostFields(m, req.CostFields)

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("update manifest: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// SetShipments replaces the manifest's shipment set in one transaction.
func (s *Service) SetShipments(ctx context.Context, id int64, shipmentIDs []int64) ([]ManifestShipment, error) {
	seen := map[int64]bool{}
	for _, sid := range shipmentIDs {
		if seen[sid] {
			return nil, fmt.Errorf("%w: duplicate shipment %d", ErrValidation, sid)
		}
		seen[sid] = true
	}

	if err := s.repo.SetShipments(ctx, id, shipmentIDs); err != nil {
		return nil, err
	}
	return s.repo.Shipments(ctx, id)
}

// SaveCosts upserts the operational cost record.
func (s *Service) SaveCosts(ctx context.Context, id int64, req SaveCostsRequest) (*OperationalCost, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	c := &OperationalCost{
		ManifestID:      id,
		FuelCost:        req.FuelCost,
		TollCost:        req.TollCost,
		PortFee:         req.PortFee,
		DriverAllowance: req.DriverAllowance,
		RepairCost:      req.RepairCost,
		OtherCost:       req.OtherCost,
		Notes:           req.Notes,
	}
	if err := s.repo.SaveCosts(ctx, c); err != nil {
		return nil, fmt.Errorf("save costs: %w", err)
	}
	return s.repo.GetCosts(ctx, id)
}

// Costs reads the operational cost record; a manifest without one yields
// an all-zero record rather than an error.
func (s *Service) Costs(ctx context.Context, id int64) (*OperationalCost, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	c, err := s.repo.GetCosts(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCostsNotFound) {
			return &OperationalCost{ManifestID: id}, nil
		}
		return nil, err
	}
	return c, nil
}

// GenerateInvoices groups the manifest's uninvoiced billable shipments by
// customer and creates one invoice per group through the invoice engine,
// one line per shipment at its nominal value. Shipments with no resolvable
// customer at all are skipped.
func (s *Service) GenerateInvoices(ctx context.Context, id int64, pphPercent float64) ([]invoices.Invoice, error) {
	if pphPercent < 0 || pphPercent > 100 {
		return nil, fmt.Errorf("%w: pph percent out of range", ErrValidation)
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	eligible, err := s.repo.UninvoicedShipments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load shipments: %w", err)
	}

	type group struct {
		customerID   *int64
		customerName string
		shipments    []ManifestShipment
	}
	var order []string
	groups := map[string]*group{}

	for _, sh := range eligible {
		var key string
		g := group{customerID: sh.CustomerID}
		switch {
		case sh.CustomerID != nil:
			key = fmt.Sprintf("id:%d", *sh.CustomerID)
		case sh.CustomerName != nil && strings.TrimSpace(*sh.CustomerName) != "":
			g.customerName = strings.TrimSpace(*sh.CustomerName)
			key = "name:" + customers.FoldName(g.customerName)
		default:
			continue
		}
		if existing, ok := groups[key]; ok {
			existing.shipments = append(existing.shipments, sh)
		} else {
			g.shipments = []ManifestShipment{sh}
			groups[key] = &g
			order = append(order, key)
		}
	}

	var created []invoices.Invoice
	for _, key := range order {
		g := groups[key]

		items := make([]invoices.ItemInput, 0, len(g.shipments))
		for _, sh := range g.shipments {
			shipmentID := sh.ShipmentID
			description := sh.SPBNumber
			if sh.GoodsDescription != nil && *sh.GoodsDescription != "" {
				description += " - " + *sh.GoodsDescription
			}
			items = append(items, invoices.ItemInput{
				Description: description,
				Quantity:    1,
				UnitPrice:   sh.Nominal,
				ShipmentID:  &shipmentID,
			})
		}

		inv, err := s.engine.Create(ctx, invoices.CreateInvoiceRequest{
			CustomerID:   g.customerID,
			CustomerName: g.customerName,
			Items:        items,
			PPhPercent:   pphPercent,
		})
		if err != nil {
			// All-or-nothing: undo the invoices created so far. Deleting an
			// invoice also releases its shipments' invoice_generated flags.
			for _, done := range created {
				if delErr := s.engine.Delete(ctx, done.ID); delErr != nil {
					return nil, fmt.Errorf("generate invoices: %v; rollback of %s also failed: %w", err, done.Number, delErr)
				}
			}
			return nil, fmt.Errorf("generate invoice for customer group: %w", err)
		}
		created = append(created, *inv)
	}
	return created, nil
}
