// Package memory is an in-process directory store for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"example.com/directory/internal/domain"
	"example.com/directory/internal/geo"
)

// Store implements every domain store port over maps guarded by one RWMutex.
type Store struct {
	mu sync.RWMutex

	activities map[int64]domain.Activity
	// ownership[owned][owner] = depth
	ownership map[int64]map[int64]int
	buildings map[int64]domain.Building
	orgs      map[int64]domain.Organization
	orgBldg   map[int64][]int64
	orgAct    map[int64][]int64

	nextActivity int64
	nextBuilding int64
	nextOrg      int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		activities: make(map[int64]domain.Activity),
		ownership:  make(map[int64]map[int64]int),
		buildings:  make(map[int64]domain.Building),
		orgs:       make(map[int64]domain.Organization),
		orgBldg:    make(map[int64][]int64),
		orgAct:     make(map[int64][]int64),
	}
}

// CreateNode implements domain.HierarchyStore.
func (s *Store) CreateNode(ctx context.Context, name string, parentID *int64) (*domain.NodeCreation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var parentRows []domain.OwnershipEdge
	if parentID != nil {
		for owner, depth := range s.ownership[*parentID] {
			parentRows = append(parentRows, domain.OwnershipEdge{OwnerID: owner, OwnedID: *parentID, Depth: depth})
		}
	}

	id := s.nextActivity + 1
	edges, truncated, err := domain.PropagateEdges(id, parentID, parentRows)
	if err != nil {
		return nil, err
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Depth < edges[j].Depth })

	s.nextActivity = id
	activity := domain.Activity{ID: id, Name: name}
	s.activities[id] = activity
	owners := make(map[int64]int, len(edges))
	for _, edge := range edges {
		owners[edge.OwnerID] = edge.Depth
	}
	s.ownership[id] = owners

	return &domain.NodeCreation{Activity: activity, ParentID: parentID, Edges: edges, Truncated: truncated}, nil
}

// OwnedIDs implements domain.HierarchyStore.
func (s *Store) OwnedIDs(_ context.Context, ownerID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []int64
	for owned, owners := range s.ownership {
		if _, ok := owners[ownerID]; ok {
			out = append(out, owned)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Paths implements domain.HierarchyStore.
func (s *Store) Paths(_ context.Context, leafIDs []int64) ([]domain.Path, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]domain.Path, 0, len(leafIDs))
	for _, leaf := range leafIDs {
		owners := s.ownership[leaf]
		rows := make([]domain.OwnershipEdge, 0, len(owners))
		for owner, depth := range owners {
			rows = append(rows, domain.OwnershipEdge{OwnerID: owner, OwnedID: leaf, Depth: depth})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Depth > rows[j].Depth })

		path := make(domain.Path, 0, len(rows))
		for _, row := range rows {
			path = append(path, domain.PathElement{ID: row.OwnerID, Name: s.activities[row.OwnerID].Name})
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// FindActivityByName implements domain.ActivityStore with a case-insensitive exact match.
func (s *Store) FindActivityByName(_ context.Context, name string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.Activity
	for _, a := range s.activities {
		if !strings.EqualFold(a.Name, name) {
			continue
		}
		if found == nil || a.ID < found.ID {
			a := a
			found = &a
		}
	}
	return found, nil
}

// ActivityExists implements domain.ActivityStore.
func (s *Store) ActivityExists(_ context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.activities[id]
	return ok, nil
}

// InsertBuilding stores b under a fresh id.
func (s *Store) InsertBuilding(_ context.Context, b domain.Building) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBuilding++
	b.ID = s.nextBuilding
	s.buildings[b.ID] = b
	return b.ID, nil
}

// InsertOrganization stores org and its links under a fresh id.
func (s *Store) InsertOrganization(_ context.Context, org domain.Organization, buildingIDs, activityIDs []int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrg++
	org.ID = s.nextOrg
	s.orgs[org.ID] = org
	s.orgBldg[org.ID] = append([]int64(nil), buildingIDs...)
	s.orgAct[org.ID] = append([]int64(nil), activityIDs...)
	return org.ID, nil
}

// FindBuilding implements domain.BuildingStore.
func (s *Store) FindBuilding(_ context.Context, id int64) (*domain.Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buildings[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// BuildingsInRadius implements domain.BuildingStore using the same bounding prefilter as Postgres.
func (s *Store) BuildingsInRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]domain.Building, error) {
	return s.BuildingsInBBox(ctx, geo.BoundsAround(center, radiusKm))
}

// BuildingsInBBox implements domain.BuildingStore.
func (s *Store) BuildingsInBBox(_ context.Context, box geo.BBox) ([]domain.Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Building
	for _, b := range s.buildings {
		if geo.InBBox(box, b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindOrganization implements domain.OrganizationStore.
func (s *Store) FindOrganization(_ context.Context, id int64) (*domain.OrganizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.orgs[id]; !ok {
		return nil, nil
	}
	record := s.recordLocked(id)
	return &record, nil
}

// SearchOrganizations implements domain.OrganizationStore.
func (s *Store) SearchOrganizations(_ context.Context, text string, limit int) ([]domain.OrganizationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(text)
	var ids []int64
	for id, org := range s.orgs {
		if strings.Contains(strings.ToLower(org.Name), needle) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ids = domain.Slice(ids, domain.Page{Limit: limit})

	out := make([]domain.OrganizationRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.recordLocked(id))
	}
	return out, nil
}

// OrganizationsByActivityIDs implements domain.OrganizationStore.
func (s *Store) OrganizationsByActivityIDs(_ context.Context, activityIDs []int64, page domain.Page) ([]domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]struct{}, len(activityIDs))
	for _, id := range activityIDs {
		wanted[id] = struct{}{}
	}

	var out []domain.Organization
	for orgID, acts := range s.orgAct {
		for _, a := range acts {
			if _, ok := wanted[a]; ok {
				out = append(out, s.orgs[orgID])
				break
			}
		}
	}
	sortOrgs(out)
	return domain.Slice(out, page), nil
}

// OrganizationsByBuilding implements domain.OrganizationStore.
func (s *Store) OrganizationsByBuilding(_ context.Context, buildingID int64, page domain.Page) ([]domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Organization
	for orgID, bldgs := range s.orgBldg {
		for _, b := range bldgs {
			if b == buildingID {
				out = append(out, s.orgs[orgID])
				break
			}
		}
	}
	sortOrgs(out)
	return domain.Slice(out, page), nil
}

// GroupByBuildingIDs implements domain.OrganizationStore.
func (s *Store) GroupByBuildingIDs(_ context.Context, buildingIDs []int64) (map[int64][]domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[int64]struct{}, len(buildingIDs))
	for _, id := range buildingIDs {
		wanted[id] = struct{}{}
	}

	grouped := make(map[int64][]domain.Organization)
	for orgID, bldgs := range s.orgBldg {
		for _, b := range bldgs {
			if _, ok := wanted[b]; ok {
				grouped[b] = append(grouped[b], s.orgs[orgID])
			}
		}
	}
	for id := range grouped {
		sortOrgs(grouped[id])
	}
	return grouped, nil
}

func (s *Store) recordLocked(id int64) domain.OrganizationRecord {
	record := domain.OrganizationRecord{
		Organization: s.orgs[id],
		ActivityIDs:  append([]int64(nil), s.orgAct[id]...),
	}
	for _, b := range s.orgBldg[id] {
		if building, ok := s.buildings[b]; ok {
			record.Buildings = append(record.Buildings, building)
		}
	}
	sort.Slice(record.Buildings, func(i, j int) bool { return record.Buildings[i].ID < record.Buildings[j].ID })
	sort.Slice(record.ActivityIDs, func(i, j int) bool { return record.ActivityIDs[i] < record.ActivityIDs[j] })
	return record
}

func sortOrgs(orgs []domain.Organization) {
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
}
