package domain

import (
	"context"

	"example.com/directory/internal/geo"
)

// HierarchyStore owns the activity closure table.
type HierarchyStore interface {
	// CreateNode inserts the activity, its self row and the propagated ancestor rows atomically.
	CreateNode(ctx context.Context, name string, parentID *int64) (*NodeCreation, error)
	// OwnedIDs returns ownerID and every activity it owns.
	OwnedIDs(ctx context.Context, ownerID int64) ([]int64, error)
	// Paths returns one root-to-leaf path per leaf id, in request order.
	Paths(ctx context.Context, leafIDs []int64) ([]Path, error)
}

// ActivityStore resolves activity references.
type ActivityStore interface {
	FindActivityByName(ctx context.Context, name string) (*Activity, error)
	ActivityExists(ctx context.Context, id int64) (bool, error)
}

// BuildingStore reads buildings. The geo lookups may return a superset of matches.
type BuildingStore interface {
	FindBuilding(ctx context.Context, id int64) (*Building, error)
	BuildingsInRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]Building, error)
	BuildingsInBBox(ctx context.Context, box geo.BBox) ([]Building, error)
}

// OrganizationStore reads organizations and their relations.
type OrganizationStore interface {
	FindOrganization(ctx context.Context, id int64) (*OrganizationRecord, error)
	SearchOrganizations(ctx context.Context, text string, limit int) ([]OrganizationRecord, error)
	OrganizationsByActivityIDs(ctx context.Context, activityIDs []int64, page Page) ([]Organization, error)
	OrganizationsByBuilding(ctx context.Context, buildingID int64, page Page) ([]Organization, error)
	GroupByBuildingIDs(ctx context.Context, buildingIDs []int64) (map[int64][]Organization, error)
}

// OwnershipCache memoises OwnedIDs results per owner.
type OwnershipCache interface {
	Get(ctx context.Context, ownerID int64) ([]int64, bool, error)
	Set(ctx context.Context, ownerID int64, ids []int64) error
	Invalidate(ctx context.Context, ownerIDs ...int64) error
}

// PropagateEdges derives the closure rows for newID placed under a parent whose incoming rows
// are parentRows (rows with OwnedID == parent). It returns the self row followed by one row per
// ancestor whose depth stays within MaxDepth, and the number of ancestors left unlinked.
// A nil parent yields only the self row. A parent without a self row does not exist.
func PropagateEdges(newID int64, parentID *int64, parentRows []OwnershipEdge) ([]OwnershipEdge, int, error) {
	edges := []OwnershipEdge{{OwnerID: newID, OwnedID: newID, Depth: 1}}
	if parentID == nil {
		return edges, 0, nil
	}

	hasSelf := false
	for _, row := range parentRows {
		if row.OwnerID == *parentID && row.OwnedID == *parentID && row.Depth == 1 {
			hasSelf = true
			break
		}
	}
	if !hasSelf {
		return nil, 0, invalid("parent_id", "activity %d does not exist", *parentID)
	}

	truncated := 0
	for _, row := range parentRows {
		if row.OwnedID != *parentID {
			continue
		}
		depth := row.Depth + 1
		if depth > MaxDepth {
			truncated++
			continue
		}
		edges = append(edges, OwnershipEdge{OwnerID: row.OwnerID, OwnedID: newID, Depth: depth})
	}
	return edges, truncated, nil
}
