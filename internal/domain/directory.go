package domain

import "example.com/directory/internal/geo"

// MaxDepth caps the stored ownership depth: 1 is the node itself, 3 a grandchild.
const MaxDepth = 3

// Activity is one node of the classification forest. Its parent is derived from ownership rows.
type Activity struct {
	ID   int64
	Name string
}

// OwnershipEdge is a closure table row: OwnerID owns OwnedID at Depth (1 = self).
type OwnershipEdge struct {
	OwnerID int64
	OwnedID int64
	Depth   int
}

// PathElement is one hop of a root-to-leaf path.
type PathElement struct {
	ID   int64
	Name string
}

// Path lists the ancestors of a leaf, root first and leaf last.
type Path []PathElement

// ActivityNode is a reconstructed tree node.
type ActivityNode struct {
	ID       int64
	Name     string
	Children []ActivityNode
}

// NodeCreation reports the outcome of creating an activity.
type NodeCreation struct {
	Activity Activity
	ParentID *int64
	Edges    []OwnershipEdge
	// Truncated counts ancestor links omitted because they would exceed MaxDepth.
	Truncated int
}

// OwnerIDs lists the owners that gained a row, self included.
func (c NodeCreation) OwnerIDs() []int64 {
	out := make([]int64, 0, len(c.Edges))
	for _, edge := range c.Edges {
		out = append(out, edge.OwnerID)
	}
	return out
}

// Building is a physical address that may carry coordinates.
type Building struct {
	ID          int64
	Country     string
	Region      *string
	City        string
	Street      string
	HouseNumber string
	Latitude    *float64
	Longitude   *float64
}

// Coordinates implements geo.Locator. Buildings missing either coordinate are not located.
func (b Building) Coordinates() (geo.Point, bool) {
	if b.Latitude == nil || b.Longitude == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *b.Latitude, Lon: *b.Longitude}, true
}

// Organization is the summary shape of a directory entry.
type Organization struct {
	ID    int64
	Name  string
	Phone string
}

// OrganizationRecord is an organization loaded with its relations.
type OrganizationRecord struct {
	Organization
	Buildings   []Building
	ActivityIDs []int64
}

// OrganizationDetail pairs an organization with its buildings and activity forest.
type OrganizationDetail struct {
	Organization
	Buildings  []Building
	Activities []ActivityNode
}

// BuildingWithOrganizations pairs a building with the organizations housed in it.
type BuildingWithOrganizations struct {
	Building      Building
	Organizations []Organization
}

// ActivityRef selects an activity either by id or by name. Exactly one must be set.
type ActivityRef struct {
	ID   *int64
	Name string
}

// Page bounds list queries. Limit 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

// Slice applies the page to an in-memory result set.
func Slice[T any](items []T, page Page) []T {
	if page.Offset >= len(items) {
		return items[:0]
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
