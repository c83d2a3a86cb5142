// Package domain defines the directory's data model, store ports and query aggregator.
package domain

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/directory/internal/geo"
	"example.com/directory/internal/observability"
)

const maxActivityNameLength = 255

// Stores bundles the collaborators the Service reads from.
type Stores struct {
	Activities    ActivityStore
	Hierarchy     HierarchyStore
	Buildings     BuildingStore
	Organizations OrganizationStore
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithCache memoises owned-id expansions.
func WithCache(cache OwnershipCache) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithLogger overrides the logger used for warnings and cache failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service answers the composite directory queries.
type Service struct {
	stores Stores
	cache  OwnershipCache
	logger zerolog.Logger
	now    func() time.Time

	// cacheMu orders cache writes against invalidations: writers bump generation and
	// invalidate under the write lock, readers only Set under the read lock when the
	// generation has not moved since they started loading.
	cacheMu    sync.RWMutex
	generation uint64
}

// NewService constructs a Service.
func NewService(stores Stores, opts ...Option) *Service {
	s := &Service{
		stores: stores,
		cache:  noopCache{},
		logger: zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateActivity adds an activity under parentID, or as a root when parentID is nil.
func (s *Service) CreateActivity(ctx context.Context, name string, parentID *int64) (*NodeCreation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("name", "must not be empty")
	}
	if len(name) > maxActivityNameLength {
		return nil, invalid("name", "must be at most %d bytes", maxActivityNameLength)
	}

	creation, err := s.stores.Hierarchy.CreateNode(ctx, name, parentID)
	if err != nil {
		return nil, internalErr("create activity", err)
	}

	observability.RecordActivityCreated(s.now())
	if creation.Truncated > 0 {
		observability.RecordLinksTruncated(creation.Truncated)
		s.logger.Warn().
			Int64("activity_id", creation.Activity.ID).
			Int("truncated_links", creation.Truncated).
			Int("max_depth", MaxDepth).
			Msg("depth cap reached, distant ancestors do not own the new activity")
	}

	s.invalidateOwners(ctx, creation)
	return creation, nil
}

// OrganizationsByActivity lists organizations linked to the activity or any activity it owns.
func (s *Service) OrganizationsByActivity(ctx context.Context, ref ActivityRef, page Page) ([]Organization, error) {
	name := strings.TrimSpace(ref.Name)
	if (ref.ID == nil) == (name == "") {
		return nil, invalid("", "exactly one of activity_id or activity_name is required")
	}

	var activityID int64
	if ref.ID != nil {
		exists, err := s.stores.Activities.ActivityExists(ctx, *ref.ID)
		if err != nil {
			return nil, internalErr("check activity", err)
		}
		if !exists {
			return nil, notFound("activity", *ref.ID)
		}
		activityID = *ref.ID
	} else {
		activity, err := s.stores.Activities.FindActivityByName(ctx, name)
		if err != nil {
			return nil, internalErr("find activity by name", err)
		}
		if activity == nil {
			return nil, notFound("activity", name)
		}
		activityID = activity.ID
	}

	owned, err := s.ownedIDs(ctx, activityID)
	if err != nil {
		return nil, internalErr("expand activity", err)
	}

	orgs, err := s.stores.Organizations.OrganizationsByActivityIDs(ctx, owned, page)
	if err != nil {
		return nil, internalErr("list organizations by activity", err)
	}
	return orgs, nil
}

// OrganizationDetail returns an organization with its buildings and activity forest.
func (s *Service) OrganizationDetail(ctx context.Context, id int64) (*OrganizationDetail, error) {
	record, err := s.stores.Organizations.FindOrganization(ctx, id)
	if err != nil {
		return nil, internalErr("find organization", err)
	}
	if record == nil {
		return nil, notFound("organization", id)
	}
	return s.assemble(ctx, *record)
}

// SearchOrganizations matches organization names case-insensitively and assembles each match.
func (s *Service) SearchOrganizations(ctx context.Context, text string, limit int) ([]OrganizationDetail, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("name", "must not be empty")
	}
	if limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}

	records, err := s.stores.Organizations.SearchOrganizations(ctx, text, limit)
	if err != nil {
		return nil, internalErr("search organizations", err)
	}

	out := make([]OrganizationDetail, 0, len(records))
	for _, record := range records {
		detail, err := s.assemble(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, *detail)
	}
	return out, nil
}

// BuildingWithOrganizations returns a building and the organizations housed in it.
func (s *Service) BuildingWithOrganizations(ctx context.Context, buildingID int64, page Page) (*BuildingWithOrganizations, error) {
	building, err := s.stores.Buildings.FindBuilding(ctx, buildingID)
	if err != nil {
		return nil, internalErr("find building", err)
	}
	if building == nil {
		return nil, notFound("building", buildingID)
	}

	orgs, err := s.stores.Organizations.OrganizationsByBuilding(ctx, buildingID, page)
	if err != nil {
		return nil, internalErr("list organizations by building", err)
	}
	if orgs == nil {
		orgs = []Organization{}
	}
	return &BuildingWithOrganizations{Building: *building, Organizations: orgs}, nil
}

// OrganizationsInRadius groups organizations by building for buildings within radiusKm of center.
func (s *Service) OrganizationsInRadius(ctx context.Context, center geo.Point, radiusKm float64, page Page) ([]BuildingWithOrganizations, error) {
	if err := center.Validate(); err != nil {
		return nil, invalid("center", "%v", err)
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) || radiusKm < 0 {
		return nil, invalid("radius_km", "must be a non-negative number")
	}

	candidates, err := s.stores.Buildings.BuildingsInRadius(ctx, center, radiusKm)
	if err != nil {
		return nil, internalErr("find buildings in radius", err)
	}

	matched := make([]Building, 0, len(candidates))
	for _, b := range candidates {
		if geo.InRadius(center, radiusKm, b) {
			matched = append(matched, b)
		}
	}
	observability.RecordGeoQuery("radius", len(candidates), len(matched))

	return s.groupByBuilding(ctx, matched, page)
}

// OrganizationsInBBox groups organizations by building for buildings inside box.
func (s *Service) OrganizationsInBBox(ctx context.Context, box geo.BBox, page Page) ([]BuildingWithOrganizations, error) {
	if err := box.Validate(); err != nil {
		return nil, invalid("bbox", "%v", err)
	}

	candidates, err := s.stores.Buildings.BuildingsInBBox(ctx, box)
	if err != nil {
		return nil, internalErr("find buildings in bbox", err)
	}

	matched := make([]Building, 0, len(candidates))
	for _, b := range candidates {
		if geo.InBBox(box, b) {
			matched = append(matched, b)
		}
	}
	observability.RecordGeoQuery("bbox", len(candidates), len(matched))

	return s.groupByBuilding(ctx, matched, page)
}

// groupByBuilding pages the matched buildings and attaches organizations with a single batched read.
func (s *Service) groupByBuilding(ctx context.Context, buildings []Building, page Page) ([]BuildingWithOrganizations, error) {
	sort.Slice(buildings, func(i, j int) bool { return buildings[i].ID < buildings[j].ID })
	buildings = Slice(buildings, page)
	if len(buildings) == 0 {
		return []BuildingWithOrganizations{}, nil
	}

	ids := make([]int64, 0, len(buildings))
	for _, b := range buildings {
		ids = append(ids, b.ID)
	}

	grouped, err := s.stores.Organizations.GroupByBuildingIDs(ctx, ids)
	if err != nil {
		return nil, internalErr("group organizations by building", err)
	}

	out := make([]BuildingWithOrganizations, 0, len(buildings))
	for _, b := range buildings {
		orgs := grouped[b.ID]
		if orgs == nil {
			orgs = []Organization{}
		}
		out = append(out, BuildingWithOrganizations{Building: b, Organizations: orgs})
	}
	return out, nil
}

func (s *Service) assemble(ctx context.Context, record OrganizationRecord) (*OrganizationDetail, error) {
	paths, err := s.stores.Hierarchy.Paths(ctx, record.ActivityIDs)
	if err != nil {
		return nil, internalErr("load activity paths", err)
	}

	buildings := record.Buildings
	if buildings == nil {
		buildings = []Building{}
	}
	return &OrganizationDetail{
		Organization: record.Organization,
		Buildings:    buildings,
		Activities:   BuildForest(paths),
	}, nil
}

func (s *Service) ownedIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	ids, ok, err := s.cache.Get(ctx, ownerID)
	switch {
	case err != nil:
		observability.RecordCacheLookup("error")
		s.logger.Warn().Err(err).Int64("owner_id", ownerID).Msg("ownership cache read failed")
	case ok:
		observability.RecordCacheLookup("hit")
		return ids, nil
	default:
		observability.RecordCacheLookup("miss")
	}

	s.cacheMu.RLock()
	generation := s.generation
	s.cacheMu.RUnlock()

	ids, err = s.stores.Hierarchy.OwnedIDs(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	if s.generation != generation {
		s.logger.Debug().Int64("owner_id", ownerID).Msg("hierarchy changed during load, not caching")
		return ids, nil
	}
	if err := s.cache.Set(ctx, ownerID, ids); err != nil {
		s.logger.Warn().Err(err).Int64("owner_id", ownerID).Msg("ownership cache write failed")
	}
	return ids, nil
}

func (s *Service) invalidateOwners(ctx context.Context, creation *NodeCreation) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.generation++
	if err := s.cache.Invalidate(ctx, creation.OwnerIDs()...); err != nil {
		s.logger.Error().Err(err).Int64("activity_id", creation.Activity.ID).Msg("ownership cache invalidation failed")
	}
}

type noopCache struct{}

func (noopCache) Get(context.Context, int64) ([]int64, bool, error) { return nil, false, nil }
func (noopCache) Set(context.Context, int64, []int64) error         { return nil }
func (noopCache) Invalidate(context.Context, ...int64) error        { return nil }
