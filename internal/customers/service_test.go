package customers

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryCustomerRepo struct {
	nextID    int64
	customers map[int64]*Customer
}

func newMemoryCustomerRepo() *memoryCustomerRepo {
	return &memoryCustomerRepo{nextID: 1, customers: make(map[int64]*Customer)}
}

func (m *memoryCustomerRepo) Get(_ context.Context, id int64) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memoryCustomerRepo) GetByFoldedName(_ context.Context, name string) (*Customer, error) {
	folded := FoldName(name)
	for _, c := range m.customers {
		if FoldName(c.Name) == folded {
			copied := *c
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryCustomerRepo) List(_ context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	var out []Customer
	for _, c := range m.customers {
		if req.Search != nil && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(*req.Search)) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (m *memoryCustomerRepo) Create(_ context.Context, c Customer) (int64, error) {
	folded := FoldName(c.Name)
	for _, existing := range m.customers {
		if FoldName(existing.Name) == folded {
			return 0, ErrAlreadyExists
		}
	}
	c.ID = m.nextID
	m.nextID++
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.customers[c.ID] = &c
	return c.ID, nil
}

func (m *memoryCustomerRepo) Update(_ context.Context, id int64, updates map[string]any) error {
	c, ok := m.customers[id]
	if !ok {
		return ErrNotFound
	}
	if v, ok := updates["name"]; ok {
		c.Name = v.(string)
	}
	if v, ok := updates["address"]; ok {
		addr := v.(string)
		c.Address = &addr
	}
	if v, ok := updates["phone"]; ok {
		phone := v.(string)
		c.Phone = &phone
	}
	c.UpdatedAt = time.Now()
	return nil
}

func TestCreateCustomerRejectsCaseInsensitiveDuplicate(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateCustomerRequest{Name: "PT Sinar Jaya"})
	require.NoError(t, err)
	require.Equal(t, "PT Sinar Jaya", first.Name)

	_, err = svc.Create(ctx, CreateCustomerRequest{Name: "pt sinar jaya"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = svc.Create(ctx, CreateCustomerRequest{Name: "  PT SINAR JAYA  "})
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = svc.Create(ctx, CreateCustomerRequest{Name: "   "})
	require.Error(t, err)
}

func TestResolveByID(t *testing.T) {
	repo := newMemoryCustomerRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateCustomerRequest{Name: "CV Makmur"})
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, &created.ID, "ignored name")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	missing := int64(999)
	_, err = svc.Resolve(ctx, &missing, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveByNameFindsExistingRegardlessOfCase(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateCustomerRequest{Name: "Toko Berkah"})
	require.NoError(t, err)

	got, err := svc.Resolve(ctx, nil, "TOKO BERKAH")
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
}

func TestResolveCreatesWhenMissing(t *testing.T) {
	repo := newMemoryCustomerRepo()
	svc := NewService(repo)
	ctx := context.Background()

	got, err := svc.Resolve(ctx, nil, "PT Baru Muncul")
	require.NoError(t, err)
	require.Equal(t, "PT Baru Muncul", got.Name)
	require.Len(t, repo.customers, 1)

	// Resolving the same name again must reuse the row, not fork it.
	again, err := svc.Resolve(ctx, nil, "pt baru muncul")
	require.NoError(t, err)
	require.Equal(t, got.ID, again.ID)
	require.Len(t, repo.customers, 1)

	_, err = svc.Resolve(ctx, nil, "   ")
	require.Error(t, err)
}

func TestUpdateCustomerPartial(t *testing.T) {
	svc := NewService(newMemoryCustomerRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateCustomerRequest{Name: "PT Lama"})
	require.NoError(t, err)

	name := "PT Baru"
	phone := "0811-222-333"
	updated, err := svc.Update(ctx, created.ID, UpdateCustomerRequest{Name: &name, Phone: &phone})
	require.NoError(t, err)
	require.Equal(t, "PT Baru", updated.Name)
	require.NotNil(t, updated.Phone)
	require.Equal(t, "0811-222-333", *updated.Phone)

	// Empty update leaves the row untouched.
	same, err := svc.Update(ctx, created.ID, UpdateCustomerRequest{})
	require.NoError(t, err)
	require.Equal(t, updated.Name, same.Name)
}
