package shipments

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kargoline/kargoline/internal/blob"
)

type memoryShipmentRepo struct {
	nextID    int64
	shipments map[int64]*Shipment
	itemRefs  map[int64]int
}

func newMemoryShipmentRepo() *memoryShipmentRepo {
	return &memoryShipmentRepo{
		nextID:    1,
		shipments: make(map[int64]*Shipment),
		itemRefs:  make(map[int64]int),
	}
}

func (m *memoryShipmentRepo) Get(_ context.Context, id int64) (*Shipment, error) {
	s, ok := m.shipments[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memoryShipmentRepo) GetBySPB(_ context.Context, spb string) (*Shipment, error) {
	for _, s := range m.shipments {
		if s.SPBNumber == spb {
			copied := *s
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryShipmentRepo) List(_ context.Context, req ListShipmentsRequest) ([]Shipment, int, error) {
	var out []Shipment
	for _, s := range m.shipments {
		if req.ManifestID != nil && (s.ManifestID == nil || *s.ManifestID != *req.ManifestID) {
			continue
		}
		if req.Unassigned && s.ManifestID != nil {
			continue
		}
		if req.Search != nil && !strings.Contains(s.SPBNumber, *req.Search) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryShipmentRepo) Create(_ context.Context, s Shipment) (int64, error) {
	for _, existing := range m.shipments {
		if existing.SPBNumber == s.SPBNumber {
			return 0, ErrAlreadyExists
		}
	}
	s.ID = m.nextID
	m.nextID++
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.shipments[s.ID] = &s
	return s.ID, nil
}

func (m *memoryShipmentRepo) Update(_ context.Context, id int64, updates map[string]any) error {
	s, ok := m.shipments[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := updates["nominal"]; ok {
		s.Nominal = v.(float64)
	}
	if v, ok := updates["destination"]; ok {
		s.Destination = v.(string)
	}
	if v, ok := updates["customer_name"]; ok {
		name := v.(string)
		s.CustomerName = &name
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memoryShipmentRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.shipments[id]; !ok {
		return ErrNotFound
	}
	if m.itemRefs[id] > 0 {
		return ErrInUse
	}
	delete(m.shipments, id)
	return nil
}

func (m *memoryShipmentRepo) FindInvoiceable(_ context.Context, filter InvoiceableFilter) ([]Shipment, error) {
	var out []Shipment
	for _, s := range m.shipments {
		if s.Nominal <= 0 || s.InvoiceGenerated {
			continue
		}
		if filter.ManifestID != nil && (s.ManifestID == nil || *s.ManifestID != *filter.ManifestID) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryShipmentRepo) MarkInvoiced(_ context.Context, ids []int64) error {
	for _, id := range ids {
		if s, ok := m.shipments[id]; ok && !s.InvoiceGenerated {
			s.InvoiceGenerated = true
		}
	}
	return nil
}

func (m *memoryShipmentRepo) ReleaseInvoiced(_ context.Context, ids []int64) error {
	for _, id := range ids {
		if s, ok := m.shipments[id]; ok {
			s.InvoiceGenerated = false
		}
	}
	return nil
}

func (m *memoryShipmentRepo) SetReturned(_ context.Context, id int64, returned bool) error {
	s, ok := m.shipments[id]
	if !ok {
		return ErrNotFound
	}
	if returned {
		if !s.SJReturned {
			now := time.Now()
			s.SJReturnedAt = &now
		}
		s.SJReturned = true
	} else {
		s.SJReturned = false
		s.SJReturnedAt = nil
	}
	return nil
}

func (m *memoryShipmentRepo) AttachPOD(_ context.Context, id int64, key string) error {
	s, ok := m.shipments[id]
	if !ok {
		return ErrNotFound
	}
	s.PODKey = &key
	return nil
}

type memoryBlobStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memoryBlobStore) Put(_ context.Context, key, contentType string, data []byte) error {
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryBlobStore) Get(_ context.Context, key string) ([]byte, string, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, "", blob.ErrNotFound
	}
	return data, m.types[key], nil
}

func (m *memoryBlobStore) Delete(_ context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return blob.ErrNotFound
	}
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

func newTestService() (*Service, *memoryShipmentRepo, *memoryBlobStore) {
	repo := newMemoryShipmentRepo()
	store := newMemoryBlobStore()
	return NewService(repo, store), repo, store
}

func createTestShipment(t *testing.T, svc *Service, spb string, nominal float64) *Shipment {
	t.Helper()
	sh, err := svc.Create(context.Background(), CreateShipmentRequest{
		SPBNumber:    spb,
		Origin:       "Surabaya",
		Destination:  "Makassar",
		Nominal:      nominal,
		Colli:        10,
		WeightKg:     250,
		ShipmentDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return sh
}

func TestCreateShipmentValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateShipmentRequest{SPBNumber: "  ", Origin: "SBY", Destination: "MKS"})
	require.Error(t, err)

	_, err = svc.Create(ctx, CreateShipmentRequest{SPBNumber: "SPB-001", Origin: "SBY", Destination: "MKS", Nominal: -5})
	require.Error(t, err)

	sh := createTestShipment(t, svc, "SPB-001", 245000)
	require.Equal(t, "SPB-001", sh.SPBNumber)
	require.False(t, sh.InvoiceGenerated)
	require.False(t, sh.SJReturned)

	_, err = svc.Create(ctx, CreateShipmentRequest{
		SPBNumber: "SPB-001", Origin: "SBY", Destination: "MKS",
		ShipmentDate: time.Now(),
	})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSetReturnedStampsTimestampOnce(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	sh := createTestShipment(t, svc, "SPB-010", 100000)

	sh, err := svc.SetReturned(ctx, sh.ID, true)
	require.NoError(t, err)
	require.True(t, sh.SJReturned)
	require.NotNil(t, sh.SJReturnedAt)
	first := *sh.SJReturnedAt

	// Repeated marking keeps the original timestamp.
	sh, err = svc.SetReturned(ctx, sh.ID, true)
	require.NoError(t, err)
	require.NotNil(t, sh.SJReturnedAt)
	require.Equal(t, first, *sh.SJReturnedAt)

	// Unmarking clears it entirely.
	sh, err = svc.SetReturned(ctx, sh.ID, false)
	require.NoError(t, err)
	require.False(t, sh.SJReturned)
	require.Nil(t, sh.SJReturnedAt)
}

func TestSetReturnedUnknownShipment(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.SetReturned(context.Background(), 999, true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindInvoiceableExcludesZeroNominalAndInvoiced(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	billable := createTestShipment(t, svc, "SPB-020", 150000)
	createTestShipment(t, svc, "SPB-021", 0)
	invoiced := createTestShipment(t, svc, "SPB-022", 90000)
	require.NoError(t, repo.MarkInvoiced(ctx, []int64{invoiced.ID}))

	eligible, err := svc.FindInvoiceable(ctx, InvoiceableFilter{})
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	require.Equal(t, billable.ID, eligible[0].ID)
}

func TestMarkInvoicedIdempotent(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	sh := createTestShipment(t, svc, "SPB-030", 50000)

	require.NoError(t, repo.MarkInvoiced(ctx, []int64{sh.ID}))
	require.NoError(t, repo.MarkInvoiced(ctx, []int64{sh.ID}))

	got, err := svc.Get(ctx, sh.ID)
	require.NoError(t, err)
	require.True(t, got.InvoiceGenerated)

	require.NoError(t, repo.ReleaseInvoiced(ctx, []int64{sh.ID}))
	got, err = svc.Get(ctx, sh.ID)
	require.NoError(t, err)
	require.False(t, got.InvoiceGenerated)
}

func TestDeleteShipmentBlockedByInvoiceItems(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	sh := createTestShipment(t, svc, "SPB-040", 75000)

	repo.itemRefs[sh.ID] = 1
	require.ErrorIs(t, svc.Delete(ctx, sh.ID), ErrInUse)

	repo.itemRefs[sh.ID] = 0
	require.NoError(t, svc.Delete(ctx, sh.ID))
	_, err := svc.Get(ctx, sh.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAttachProofOfDeliveryMarksReturned(t *testing.T) {
	svc, _, store := newTestService()
	ctx := context.Background()
	sh := createTestShipment(t, svc, "SPB-050", 125000)

	_, err := svc.AttachProofOfDelivery(ctx, sh.ID, "image/jpeg", nil)
	require.Error(t, err)

	sh, err = svc.AttachProofOfDelivery(ctx, sh.ID, "image/jpeg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NotNil(t, sh.PODKey)
	require.True(t, sh.SJReturned)
	require.NotNil(t, sh.SJReturnedAt)
	require.Contains(t, store.objects, *sh.PODKey)

	data, contentType, err := svc.ProofOfDelivery(ctx, sh.ID)
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", contentType)
	require.Equal(t, []byte("jpeg-bytes"), data)
}

func TestProofOfDeliveryMissing(t *testing.T) {
	svc, _, _ := newTestService()
	sh := createTestShipment(t, svc, "SPB-060", 45000)

	_, _, err := svc.ProofOfDelivery(context.Background(), sh.ID)
	require.ErrorIs(t, err, blob.ErrNotFound)
}

func TestUpdateShipmentPartial(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	sh := createTestShipment(t, svc, "SPB-070", 30000)

	nominal := 42000.0
	dest := "Banjarmasin"
	updated, err := svc.Update(ctx, sh.ID, UpdateShipmentRequest{Nominal: &nominal, Destination: &dest})
	require.NoError(t, err)
	require.Equal(t, 42000.0, updated.Nominal)
	require.Equal(t, "Banjarmasin", updated.Destination)

	bad := -1.0
	_, err = svc.Update(ctx, sh.ID, UpdateShipmentRequest{Nominal: &bad})
	require.Error(t, err)

	// No fields supplied returns the current row untouched.
	same, err := svc.Update(ctx, sh.ID, UpdateShipmentRequest{})
	require.NoError(t, err)
	require.Equal(t, updated.Nominal, same.Nominal)
}
