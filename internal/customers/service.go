package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// FoldName normalizes a customer name for case-insensitive comparison.
func FoldName(name string) string {
	return foldCaser.String(strings.TrimSpace(name))
}

// Service handles the customer directory business logic.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Resolve finds a customer by id or by case-folded name; when no match
// exists for the name, a new row is created. The silent fall-back to
// creation is deliberate: invoice generation must never stall on an
// unknown customer name.
func (s *Service) Resolve(ctx context.Context, id *int64, name string) (*Customer, error) {
	if id != nil && *id > 0 {
		return s.repo.Get(ctx, *id)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("customers: no customer resolvable")
	}

	existing, err := s.repo.GetByFoldedName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup customer by name: %w", err)
	}

	newID, err := s.repo.Create(ctx, Customer{Name: name})
	if err != nil {
		// A concurrent request may have created the same name; the unique
		// index on the folded name makes the re-fetch authoritative.
		if errors.Is(err, ErrAlreadyExists) {
			return s.repo.GetByFoldedName(ctx, name)
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return s.repo.Get(ctx, newID)
}

// Create registers a customer, rejecting case-insensitive duplicates.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("customers: name is required")
	}

	if existing, err := s.repo.GetByFoldedName(ctx, name); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, existing.Name)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing customer: %w", err)
	}

	id, err := s.repo.Create(ctx, Customer{
		Name:    name,
		Address: req.Address,
		Phone:   req.Phone,
		TaxID:   req.TaxID,
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.TaxID != nil {
		updates["tax_id"] = *req.TaxID
	}

	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Get returns one customer.
func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.Get(ctx, id)
}

// List returns customers matching the filter plus a total count.
func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, req)
}
