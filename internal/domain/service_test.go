package domain_test

import (
	"context"
	"errors"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/directory/internal/domain"
	"example.com/directory/internal/geo"
	"example.com/directory/internal/observability"
	"example.com/directory/internal/persistence/memory"
)

func ptr[T any](v T) *T { return &v }

func newService(store *memory.Store, opts ...domain.Option) *domain.Service {
	return domain.NewService(domain.Stores{
		Activities:    store,
		Hierarchy:     store,
		Buildings:     store,
		Organizations: store,
	}, opts...)
}

type foodFixture struct {
	store                 *memory.Store
	food, meat, dairy     int64
	both, meatOnly, other int64
}

func newFoodFixture(t *testing.T) foodFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	food, err := store.CreateNode(ctx, "Food", nil)
	require.NoError(t, err)
	meat, err := store.CreateNode(ctx, "Meat", ptr(food.Activity.ID))
	require.NoError(t, err)
	dairy, err := store.CreateNode(ctx, "Dairy", ptr(food.Activity.ID))
	require.NoError(t, err)
	cars, err := store.CreateNode(ctx, "Cars", nil)
	require.NoError(t, err)

	b, err := store.InsertBuilding(ctx, domain.Building{City: "Novosibirsk", Latitude: ptr(55.0), Longitude: ptr(82.0)})
	require.NoError(t, err)

	both, _ := store.InsertOrganization(ctx, domain.Organization{Name: "Farm", Phone: "8-100-10-10"}, []int64{b}, []int64{meat.Activity.ID, dairy.Activity.ID})
	meatOnly, _ := store.InsertOrganization(ctx, domain.Organization{Name: "Butcher", Phone: "8-200-20-20"}, []int64{b}, []int64{meat.Activity.ID})
	other, _ := store.InsertOrganization(ctx, domain.Organization{Name: "Garage", Phone: "8-300-30-30"}, []int64{b}, []int64{cars.Activity.ID})

	return foodFixture{
		store: store,
		food:  food.Activity.ID, meat: meat.Activity.ID, dairy: dairy.Activity.ID,
		both: both, meatOnly: meatOnly, other: other,
	}
}

func TestOrganizationsByActivityNameIncludesDescendantsOnce(t *testing.T) {
	fx := newFoodFixture(t)
	svc := newService(fx.store)

	orgs, err := svc.OrganizationsByActivity(context.Background(), domain.ActivityRef{Name: "Food"}, domain.Page{})
	require.NoError(t, err)

	ids := make([]int64, 0, len(orgs))
	for _, o := range orgs {
		ids = append(ids, o.ID)
	}
	require.Equal(t, []int64{fx.both, fx.meatOnly}, ids)
}

func TestOrganizationsByActivityID(t *testing.T) {
	fx := newFoodFixture(t)
	svc := newService(fx.store)

	orgs, err := svc.OrganizationsByActivity(context.Background(), domain.ActivityRef{ID: ptr(fx.dairy)}, domain.Page{})
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, fx.both, orgs[0].ID)
}

func TestOrganizationsByActivityValidation(t *testing.T) {
	svc := newService(memory.NewStore())
	ctx := context.Background()

	_, err := svc.OrganizationsByActivity(ctx, domain.ActivityRef{}, domain.Page{})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.OrganizationsByActivity(ctx, domain.ActivityRef{ID: ptr(int64(1)), Name: "Food"}, domain.Page{})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.OrganizationsByActivity(ctx, domain.ActivityRef{Name: "Nope"}, domain.Page{})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.OrganizationsByActivity(ctx, domain.ActivityRef{ID: ptr(int64(404))}, domain.Page{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrganizationDetailBuildsForest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cars, _ := store.CreateNode(ctx, "Автомобили", nil)
	light, _ := store.CreateNode(ctx, "Легковые", ptr(cars.Activity.ID))
	parts, _ := store.CreateNode(ctx, "Запчасти", ptr(light.Activity.ID))
	orgID, _ := store.InsertOrganization(ctx, domain.Organization{Name: "АвтоМир", Phone: "8-123-45-67"}, nil, []int64{parts.Activity.ID})

	detail, err := newService(store).OrganizationDetail(ctx, orgID)
	require.NoError(t, err)
	require.Equal(t, "АвтоМир", detail.Name)
	require.Equal(t, []domain.Building{}, detail.Buildings)
	require.Equal(t, []domain.ActivityNode{{
		ID: cars.Activity.ID, Name: "Автомобили", Children: []domain.ActivityNode{{
			ID: light.Activity.ID, Name: "Легковые", Children: []domain.ActivityNode{{
				ID: parts.Activity.ID, Name: "Запчасти", Children: []domain.ActivityNode{},
			}},
		}},
	}}, detail.Activities)
}

func TestOrganizationDetailNotFound(t *testing.T) {
	_, err := newService(memory.NewStore()).OrganizationDetail(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrNotFound)

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "organization", nf.Entity)
}

func TestSearchOrganizations(t *testing.T) {
	fx := newFoodFixture(t)
	svc := newService(fx.store)

	found, err := svc.SearchOrganizations(context.Background(), "fArM", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, fx.both, found[0].ID)
	require.Len(t, found[0].Activities, 1, "meat and dairy share the Food root")
	require.Len(t, found[0].Activities[0].Children, 2)

	_, err = svc.SearchOrganizations(context.Background(), "   ", 10)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestOrganizationsInRadiusScenario(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	near, _ := store.InsertBuilding(ctx, domain.Building{City: "A", Latitude: ptr(55.0), Longitude: ptr(82.0)})
	far, _ := store.InsertBuilding(ctx, domain.Building{City: "B", Latitude: ptr(56.5), Longitude: ptr(83.0)})
	_, _ = store.InsertBuilding(ctx, domain.Building{City: "Nowhere"})
	org, _ := store.InsertOrganization(ctx, domain.Organization{Name: "Near"}, []int64{near}, nil)
	_, _ = store.InsertOrganization(ctx, domain.Organization{Name: "Far"}, []int64{far}, nil)

	svc := newService(store)
	got, err := svc.OrganizationsInRadius(ctx, geo.Point{Lat: 55.0, Lon: 82.0}, 1, domain.Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, near, got[0].Building.ID)
	require.Len(t, got[0].Organizations, 1)
	require.Equal(t, org, got[0].Organizations[0].ID)

	all, err := svc.OrganizationsInRadius(ctx, geo.Point{Lat: 55.0, Lon: 82.0}, 500, domain.Page{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	paged, err := svc.OrganizationsInRadius(ctx, geo.Point{Lat: 55.0, Lon: 82.0}, 500, domain.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, far, paged[0].Building.ID)
}

func TestOrganizationsInRadiusValidation(t *testing.T) {
	svc := newService(memory.NewStore())
	_, err := svc.OrganizationsInRadius(context.Background(), geo.Point{Lat: 55, Lon: 82}, -1, domain.Page{})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.OrganizationsInRadius(context.Background(), geo.Point{Lat: 95, Lon: 82}, 1, domain.Page{})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestOrganizationsInBBoxIncludesBoundaryAndEmptyBuildings(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	edge, _ := store.InsertBuilding(ctx, domain.Building{City: "Edge", Latitude: ptr(55.0), Longitude: ptr(82.5)})
	_, _ = store.InsertBuilding(ctx, domain.Building{City: "Out", Latitude: ptr(54.0), Longitude: ptr(82.5)})

	got, err := newService(store).OrganizationsInBBox(ctx, geo.BBox{MinLat: 55, MaxLat: 56, MinLon: 82, MaxLon: 83}, domain.Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, edge, got[0].Building.ID)
	require.Equal(t, []domain.Organization{}, got[0].Organizations)

	_, err = newService(store).OrganizationsInBBox(ctx, geo.BBox{MinLat: 56, MaxLat: 55, MinLon: 82, MaxLon: 83}, domain.Page{})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestBuildingWithOrganizations(t *testing.T) {
	fx := newFoodFixture(t)
	svc := newService(fx.store)

	got, err := svc.BuildingWithOrganizations(context.Background(), 1, domain.Page{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Building.ID)
	require.Len(t, got.Organizations, 2)

	_, err = svc.BuildingWithOrganizations(context.Background(), 77, domain.Page{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateActivityDepthCapAndCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := &recordingCache{entries: map[int64][]int64{}}
	svc := newService(store, domain.WithCache(cache))

	root, err := svc.CreateActivity(ctx, "root", nil)
	require.NoError(t, err)
	child, err := svc.CreateActivity(ctx, "child", ptr(root.Activity.ID))
	require.NoError(t, err)
	grandchild, err := svc.CreateActivity(ctx, "grandchild", ptr(child.Activity.ID))
	require.NoError(t, err)

	_, err = svc.OrganizationsByActivity(ctx, domain.ActivityRef{ID: ptr(root.Activity.ID)}, domain.Page{})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{root.Activity.ID, child.Activity.ID, grandchild.Activity.ID}, cache.entries[root.Activity.ID])

	hits := counterValue(t, observability.CacheLookups().WithLabelValues("hit"))
	_, err = svc.OrganizationsByActivity(ctx, domain.ActivityRef{ID: ptr(root.Activity.ID)}, domain.Page{})
	require.NoError(t, err)
	require.Equal(t, hits+1, counterValue(t, observability.CacheLookups().WithLabelValues("hit")))

	truncatedBefore := counterValue(t, observability.LinksTruncated())
	great, err := svc.CreateActivity(ctx, "greatgrandchild", ptr(grandchild.Activity.ID))
	require.NoError(t, err)
	require.Equal(t, 1, great.Truncated)
	require.Equal(t, truncatedBefore+1, counterValue(t, observability.LinksTruncated()))
	require.ElementsMatch(t, []int64{great.Activity.ID, grandchild.Activity.ID, child.Activity.ID}, cache.invalidated[len(cache.invalidated)-3:])
	require.Contains(t, cache.entries, root.Activity.ID, "root does not own the new node, so its entry survives")

	owned, err := store.OwnedIDs(ctx, root.Activity.ID)
	require.NoError(t, err)
	require.NotContains(t, owned, great.Activity.ID)
}

func TestOwnedIDsLoadedDuringCreateAreNotCached(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := &recordingCache{entries: map[int64][]int64{}}
	hierarchy := &interleavingHierarchy{Store: store}
	svc := domain.NewService(domain.Stores{
		Activities:    store,
		Hierarchy:     hierarchy,
		Buildings:     store,
		Organizations: store,
	}, domain.WithCache(cache))

	root, err := svc.CreateActivity(ctx, "root", nil)
	require.NoError(t, err)

	var added *domain.NodeCreation
	hierarchy.afterLoad = func() {
		added, err = svc.CreateActivity(ctx, "child", ptr(root.Activity.ID))
		require.NoError(t, err)
	}

	_, err = svc.OrganizationsByActivity(ctx, domain.ActivityRef{ID: ptr(root.Activity.ID)}, domain.Page{})
	require.NoError(t, err)
	require.NotNil(t, added)
	require.NotContains(t, cache.entries, root.Activity.ID)

	_, err = svc.OrganizationsByActivity(ctx, domain.ActivityRef{ID: ptr(root.Activity.ID)}, domain.Page{})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{root.Activity.ID, added.Activity.ID}, cache.entries[root.Activity.ID])
}

func TestCreateActivityValidation(t *testing.T) {
	svc := newService(memory.NewStore())

	_, err := svc.CreateActivity(context.Background(), " ", nil)
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.CreateActivity(context.Background(), "child", ptr(int64(5)))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestStoreFailuresBecomeInternal(t *testing.T) {
	boom := errors.New("connection reset")
	svc := domain.NewService(domain.Stores{Organizations: failingOrgs{err: boom}})

	_, err := svc.OrganizationDetail(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrInternal)
	require.ErrorIs(t, err, boom)
	require.False(t, errors.Is(err, domain.ErrNotFound))
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

type recordingCache struct {
	entries     map[int64][]int64
	invalidated []int64
}

func (c *recordingCache) Get(_ context.Context, owner int64) ([]int64, bool, error) {
	ids, ok := c.entries[owner]
	return ids, ok, nil
}

func (c *recordingCache) Set(_ context.Context, owner int64, ids []int64) error {
	c.entries[owner] = ids
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, owners ...int64) error {
	for _, o := range owners {
		delete(c.entries, o)
		c.invalidated = append(c.invalidated, o)
	}
	return nil
}

// interleavingHierarchy runs afterLoad once, after OwnedIDs has read its result.
type interleavingHierarchy struct {
	*memory.Store
	afterLoad func()
}

func (h *interleavingHierarchy) OwnedIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	ids, err := h.Store.OwnedIDs(ctx, ownerID)
	if hook := h.afterLoad; hook != nil {
		h.afterLoad = nil
		hook()
	}
	return ids, err
}

type failingOrgs struct {
	domain.OrganizationStore
	err error
}

func (f failingOrgs) FindOrganization(context.Context, int64) (*domain.OrganizationRecord, error) {
	return nil, f.err
}
