package shipments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kargoline/kargoline/internal/blob"
)

// Service handles shipment ledger business logic.
type Service struct {
	repo Repository
	blob blob.Store
}

// NewService builds a Service instance.
func NewService(repo Repository, blobStore blob.Store) *Service {
	return &Service{repo: repo, blob: blobStore}
}

// Create registers a shipment.
func (s *Service) Create(ctx context.Context, req CreateShipmentRequest) (*Shipment, error) {
	if strings.TrimSpace(req.SPBNumber) == "" {
		return nil, errors.New("spb number is required")
	}
	if req.Nominal < 0 {
		return nil, errors.New("nominal must not be negative")
	}

	id, err := s.repo.Create(ctx, Shipment{
		SPBNumber:        strings.TrimSpace(req.SPBNumber),
		CustomerID:       req.CustomerID,
		CustomerName:     req.CustomerName,
		Origin:           req.Origin,
		Destination:      req.Destination,
		GoodsDescription: req.GoodsDescription,
		Nominal:          req.Nominal,
		Colli:            req.Colli,
		WeightKg:         req.WeightKg,
		ShipmentDate:     req.ShipmentDate,
	})
	if err != nil {
		return nil, fmt.Errorf("create shipment: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id int64, req UpdateShipmentRequest) (*Shipment, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.CustomerID != nil {
		updates["customer_id"] = *req.CustomerID
	}
	if req.CustomerName != nil {
		updates["customer_name"] = *req.CustomerName
	}
	if req.Origin != nil {
		updates["origin"] = *req.Origin
	}
	if req.Destination != nil {
		updates["destination"] = *req.Destination
	}
	if req.GoodsDescription != nil {
		updates["goods_description"] = *req.GoodsDescription
	}
	if req.Nominal != nil {
		if *req.Nominal < 0 {
			return nil, errors.New("nominal must not be negative")
		}
		updates["nominal"] = *req.Nominal
	}
	if req.Colli != nil {
		updates["colli"] = *req.Colli
	}
	if req.WeightKg != nil {
		updates["weight_kg"] = *req.WeightKg
	}

	if len(updates) == 0 {
		return existing, nil
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("update shipment: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Get returns one shipment.
func (s *Service) Get(ctx context.Context, id int64) (*Shipment, error) {
	return s.repo.Get(ctx, id)
}

// List returns shipments matching the filter plus a total count.
func (s *Service) List(ctx context.Context, req ListShipmentsRequest) ([]Shipment, int, error) {
	return s.repo.List(ctx, req)
}

// Delete removes a shipment; it fails with ErrInUse while invoice items
// still reference it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// SetReturned records the Surat Jalan return state.
func (s *Service) SetReturned(ctx context.Context, id int64, returned bool) (*Shipment, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetReturned(ctx, id, returned); err != nil {
		return nil, fmt.Errorf("set returned: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// AttachProofOfDelivery stores the photo bytes and stamps the shipment as
// returned in the same call, since a signed POD implies the SJ came back.
func (s *Service) AttachProofOfDelivery(ctx context.Context, id int64, contentType string, data []byte) (*Shipment, error) {
	sh, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty upload")
	}

	key := fmt.Sprintf("pod/%s/%s", time.Now().UTC().Format("2006/01"), uuid.NewString())
	if err := s.blob.Put(ctx, key, contentType, data); err != nil {
		return nil, fmt.Errorf("store pod: %w", err)
	}

	if err := s.repo.AttachPOD(ctx, sh.ID, key); err != nil {
		return nil, fmt.Errorf("attach pod: %w", err)
	}
	if err := s.repo.SetReturned(ctx, sh.ID, true); err != nil {
		return nil, fmt.Errorf("mark returned: %w", err)
	}
	return s.repo.Get(ctx, sh.ID)
}

// ProofOfDelivery streams a stored POD photo back to the caller.
func (s *Service) ProofOfDelivery(ctx context.Context, id int64) ([]byte, string, error) {
	sh, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if sh.PODKey == nil {
		return nil, "", blob.ErrNotFound
	}
	return s.blob.Get(ctx, *sh.PODKey)
}

// FindInvoiceable exposes the invoice-eligibility query to the engine.
func (s *Service) FindInvoiceable(ctx context.Context, filter InvoiceableFilter) ([]Shipment, error) {
	return s.repo.FindInvoiceable(ctx, filter)
}
