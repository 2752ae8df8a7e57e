package manifests

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kargoline/kargoline/internal/invoices"
	"github.com/kargoline/kargoline/internal/money"
)

type stubShipment struct {
	id           int64
	spb          string
	customerID   *int64
	customerName *string
	nominal      float64
	invoiced     bool
	manifestID   *int64
}

type memoryManifestRepo struct {
	nextID    int64
	manifests map[int64]*Manifest
	links     map[int64][]int64 // manifest id -> ordered shipment ids
	costs     map[int64]*OperationalCost
	monthSeq  map[string]int
	shipments map[int64]*stubShipment
}

func newMemoryManifestRepo() *memoryManifestRepo {
	return &memoryManifestRepo{
		nextID:    1,
		manifests: map[int64]*Manifest{},
		links:     map[int64][]int64{},
		costs:     map[int64]*OperationalCost{},
		monthSeq:  map[string]int{},
		shipments: map[int64]*stubShipment{},
	}
}

func (m *memoryManifestRepo) Get(_ context.Context, id int64) (*Manifest, error) {
	mf, ok := m.manifests[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *mf
	return &copied, nil
}

func (m *memoryManifestRepo) List(_ context.Context, _ ListManifestsRequest) ([]Summary, int, error) {
	var out []Summary
	for id, mf := range m.manifests {
		out = append(out, Summary{Manifest: *mf, ShipmentCount: len(m.links[id])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryManifestRepo) Create(_ context.Context, mf *Manifest) error {
	if mf.Number == "" {
		yymm := mf.ManifestDate.Format("0601")
		m.monthSeq[yymm]++
		mf.Number = fmt.Sprintf("DBL.%s.%03d", yymm, m.monthSeq[yymm])
	}
	mf.ID = m.nextID
	m.nextID++
	copied := *mf
	m.manifests[mf.ID] = &copied
	return nil
}

func (m *memoryManifestRepo) Update(_ context.Context, mf *Manifest) error {
	if _, ok := m.manifests[mf.ID]; !ok {
		return ErrNotFound
	}
	copied := *mf
	m.manifests[mf.ID] = &copied
	return nil
}

func (m *memoryManifestRepo) SetShipments(_ context.Context, manifestID int64, shipmentIDs []int64) error {
	if _, ok := m.manifests[manifestID]; !ok {
		return ErrNotFound
	}
	wanted := map[int64]bool{}
	for _, id := range shipmentIDs {
		wanted[id] = true
	}
	for _, id := range m.links[manifestID] {
		if !wanted[id] {
			if s, ok := m.shipments[id]; ok {
				s.manifestID = nil
			}
		}
	}
	for _, id := range shipmentIDs {
		if s, ok := m.shipments[id]; ok {
			mid := manifestID
			s.manifestID = &mid
		}
	}
	m.links[manifestID] = append([]int64(nil), shipmentIDs...)
	return nil
}

func (m *memoryManifestRepo) Shipments(_ context.Context, manifestID int64) ([]ManifestShipment, error) {
	var out []ManifestShipment
	for pos, id := range m.links[manifestID] {
		s, ok := m.shipments[id]
		if !ok {
			continue
		}
		out = append(out, ManifestShipment{
			ShipmentID:       s.id,
			Position:         pos,
			SPBNumber:        s.spb,
			CustomerID:       s.customerID,
			CustomerName:     s.customerName,
			Destination:      "Makassar",
			Nominal:          s.nominal,
			InvoiceGenerated: s.invoiced,
		})
	}
	return out, nil
}

func (m *memoryManifestRepo) UninvoicedShipments(ctx context.Context, manifestID int64) ([]ManifestShipment, error) {
	all, err := m.Shipments(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	var out []ManifestShipment
	for _, s := range all {
		if !s.InvoiceGenerated && s.Nominal > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryManifestRepo) GetCosts(_ context.Context, manifestID int64) (*OperationalCost, error) {
	c, ok := m.costs[manifestID]
	if !ok {
		return nil, ErrCostsNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memoryManifestRepo) SaveCosts(_ context.Context, c *OperationalCost) error {
	copied := *c
	copied.UpdatedAt = time.Now()
	m.costs[c.ManifestID] = &copied
	return nil
}

// fakeEngine stands in for the invoice lifecycle engine. It records each
// create, marks the referenced shipments invoiced, and can be told to fail
// on a given call.
type fakeEngine struct {
	repo    *memoryManifestRepo
	nextID  int64
	created map[int64]invoices.Invoice
	failOn  int
	calls   int
}

func newFakeEngine(repo *memoryManifestRepo) *fakeEngine {
	return &fakeEngine{repo: repo, nextID: 1, created: map[int64]invoices.Invoice{}, failOn: -1}
}

func (e *fakeEngine) Create(_ context.Context, req invoices.CreateInvoiceRequest) (*invoices.Invoice, error) {
	e.calls++
	if e.calls == e.failOn {
		return nil, fmt.Errorf("storage gone away")
	}

	inv := invoices.Invoice{
		ID:         e.nextID,
		Number:     fmt.Sprintf("INV/2025/%04d", e.nextID),
		PPhPercent: req.PPhPercent,
		Status:     invoices.StatusPending,
	}
	e.nextID++

	lines := make([]money.Line, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, money.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice, ItemDiscount: it.ItemDiscount})
		inv.Items = append(inv.Items, invoices.Item{
			InvoiceID:   inv.ID,
			ShipmentID:  it.ShipmentID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
		if it.ShipmentID != nil {
			if s, ok := e.repo.shipments[*it.ShipmentID]; ok {
				s.invoiced = true
			}
		}
	}
	inv.Subtotal = money.Subtotal(lines)
	inv.TotalTagihan = inv.Subtotal
	inv.RemainingAmount = inv.Subtotal
	inv.CustomerName = req.CustomerName

	e.created[inv.ID] = inv
	return &inv, nil
}

func (e *fakeEngine) Delete(_ context.Context, id int64) error {
	inv, ok := e.created[id]
	if !ok {
		return invoices.ErrNotFound
	}
	for _, it := range inv.Items {
		if it.ShipmentID != nil {
			if s, ok := e.repo.shipments[*it.ShipmentID]; ok {
				s.invoiced = false
			}
		}
	}
	delete(e.created, id)
	return nil
}

func newTestService() (*Service, *memoryManifestRepo, *fakeEngine) {
	repo := newMemoryManifestRepo()
	engine := newFakeEngine(repo)
	return NewService(repo, engine), repo, engine
}

func manifestDate() *time.Time {
	t := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	return &t
}

func addStubShipment(repo *memoryManifestRepo, id int64, spb string, customerID *int64, customerName *string, nominal float64) {
	repo.shipments[id] = &stubShipment{id: id, spb: spb, customerID: customerID, customerName: customerName, nominal: nominal}
}

func TestCreateManifestGeneratesNumberAndTotals(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	loco := 5000000.0
	tekor := 500000.0
	driverFee := 1000000.0
	commission := 250000.0

	m, err := svc.Create(ctx, CreateManifestRequest{
		ManifestDate:  manifestDate(),
		VehicleNumber: "DA 1234 XY",
		DriverName:    "Pak Udin",
		CostFields: CostFields{
			LocoAmount:  &loco,
			TekorAmount: &tekor,
			DriverFee:   &driverFee,
			Commission:  &commission,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "DBL.2503.001", m.Number)
	require.Equal(t, 4500000.0, m.TotalTagihan)
	require.Equal(t, 1250000.0, m.TotalBayar)

	m2, err := svc.Create(ctx, CreateManifestRequest{
		ManifestDate:  manifestDate(),
		VehicleNumber: "DA 5678 ZZ",
		DriverName:    "Pak Asep",
	})
	require.NoError(t, err)
	require.Equal(t, "DBL.2503.002", m2.Number)

	_, err = svc.Create(ctx, CreateManifestRequest{DriverName: "Pak Udin"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestBumpSequence(t *testing.T) {
	next, err := bumpSequence("DBL.2503.012")
	require.NoError(t, err)
	require.Equal(t, "DBL.2503.013", next)

	_, err = bumpSequence("garbage")
	require.Error(t, err)
}

func TestUpdateCostsMergesBeforeRecomputing(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	loco := 3000000.0
	driverFee := 800000.0
	m, err := svc.Create(ctx, CreateManifestRequest{
		ManifestDate:  manifestDate(),
		VehicleNumber: "DA 1234 XY",
		DriverName:    "Pak Udin",
		CostFields:    CostFields{LocoAmount: &loco, DriverFee: &driverFee},
	})
	require.NoError(t, err)

	// Supplying only tekor must not zero out loco or the fees.
	tekor := 200000.0
	m, err = svc.Update(ctx, m.ID, UpdateManifestRequest{CostFields: CostFields{TekorAmount: &tekor}})
	require.NoError(t, err)
	require.Equal(t, 3000000.0, m.LocoAmount)
	require.Equal(t, 2800000.0, m.TotalTagihan)
	require.Equal(t, 800000.0, m.TotalBayar)

	adminFee := 50000.0
	m, err = svc.Update(ctx, m.ID, UpdateManifestRequest{CostFields: CostFields{AdminFee: &adminFee}})
	require.NoError(t, err)
	require.Equal(t, 850000.0, m.TotalBayar)
}

func TestSetShipmentsReplacesLinksAndRefs(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		addStubShipment(repo, i, fmt.Sprintf("SPB-%03d", i), nil, nil, 10000)
	}
	m, err := svc.Create(ctx, CreateManifestRequest{
		ManifestDate:  manifestDate(),
		VehicleNumber: "DA 1234 XY",
		DriverName:    "Pak Udin",
	})
	require.NoError(t, err)

	rows, err := svc.SetShipments(ctx, m.ID, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []int{0, 1, 2}, []int{rows[0].Position, rows[1].Position, rows[2].Position})
	require.NotNil(t, repo.shipments[1].manifestID)

	rows, err = svc.SetShipments(ctx, m.ID, []int64{3, 4, 2})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, int64(3), rows[0].ShipmentID)
	require.Equal(t, int64(4), rows[1].ShipmentID)
	require.Nil(t, repo.shipments[1].manifestID)
	require.NotNil(t, repo.shipments[4].manifestID)

	_, err = svc.SetShipments(ctx, m.ID, []int64{2, 2})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.SetShipments(ctx, 999, []int64{1})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateInvoicesGroupsByCustomer(t *testing.T) {
	svc, repo, engine := newTestService()
	ctx := context.Background()

	ptA := "PT A"
	ptB := "PT B"
	addStubShipment(repo, 1, "SPB-001", nil, &ptA, 100000)
	addStubShipment(repo, 2, "SPB-002", nil, &ptA, 200000)
	addStubShipment(repo, 3, "SPB-003", nil, &ptB, 50000)

	m, err := svc.Create(ctx, CreateManifestRequest{
		ManifestDate:  manifestDate(),
		VehicleNumber: "DA 1234 XY",
		DriverName:    "Pak Udin",
	})
	require.NoError(t, err)
	_, err = svc.SetShipments(ctx, m.ID, []int64{1, 2, 3})
	require.NoError(t, err)

	created, err := svc.GenerateInvoices(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, "PT A", created[0].CustomerName)
	require.Equal(t, 300000.0, created[0].Subtotal)
	require.Equal(t, "PT B", created[1].CustomerName)
	require.Equal(t, 50000.0, created[1].Subtotal)

	for i := int64(1); i <= 3; i++ {
		require.True(t, repo.shipments[i].invoiced, "shipment %d", i)
	}

	// A second run finds nothing left to bill.
	created, err = svc.GenerateInvoices(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Empty(t, created)
	require.Equal(t, 2, len(engine.created))
}

func TestGenerateInvoicesSkipsCustomerlessShipments(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	ptA := "PT A"
	addStubShipment(repo, 1, "SPB-001", nil, &ptA, 100000)
	addStubShipment(repo, 2, "SPB-002", nil, nil, 75000) // no customer at all

	m, err := svc.Create(ctx, CreateManifestRequest{
		ManifestDate:  manifestDate(),
		VehicleNumber: "DA 1234 XY",
		DriverName:    "Pak Udin",
	})
	require.NoError(t, err)
	_, err = svc.SetShipments(ctx, m.ID, []int64{1, 2})
	require.NoError(t, err)

	created, err := svc.GenerateInvoices(ctx, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.False(t, repo.shipments[2].invoiced)
}

func TestGenerateInvoicesRollsBackOnFailure(t *testing.T) {
	svc, repo, engine := newTestService()
	ctx := context.Background()

	ptA := "PT A"
	ptB := "PT B"
	addStubShipment(repo, 1, "SPB-001", nil, &ptA, 100000)
	addStubShipment(repo, 2, "SPB-002", nil, &ptB, 50000)

	m, err := svc.Create(ctx, CreateManifestRequest{
		ManifestDate:  manifestDate(),
		VehicleNumber: "DA 1234 XY",
		DriverName:    "Pak Udin",
	})
	require.NoError(t, err)
	_, err = svc.SetShipments(ctx, m.ID, []int64{1, 2})
	require.NoError(t, err)

	engine.failOn = 2
	_, err = svc.GenerateInvoices(ctx, m.ID, 0)
	require.Error(t, err)

	// The first group's invoice was undone and its shipment released.
	require.Empty(t, engine.created)
	require.False(t, repo.shipments[1].invoiced)
	require.False(t, repo.shipments[2].invoiced)
}

func TestOperationalCosts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	m, err := svc.Create(ctx, CreateManifestRequest{
		ManifestDate:  manifestDate(),
		VehicleNumber: "DA 1234 XY",
		DriverName:    "Pak Udin",
	})
	require.NoError(t, err)

	// Unrecorded costs read back as an all-zero record.
	c, err := svc.Costs(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, c.Total())

	c, err = svc.SaveCosts(ctx, m.ID, SaveCostsRequest{
		FuelCost:        1200000,
		TollCost:        150000,
		DriverAllowance: 300000,
	})
	require.NoError(t, err)
	require.Equal(t, 1650000.0, c.Total())

	_, err = svc.SaveCosts(ctx, 999, SaveCostsRequest{})
	require.ErrorIs(t, err, ErrNotFound)
}
