package api

import "example.com/directory/internal/domain"

// CreateActivityRequest is the payload for POST /api/v1/activities.
type CreateActivityRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// CreateActivityResponse describes the created node.
type CreateActivityResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	ParentID       *int64 `json:"parent_id"`
	TruncatedLinks int    `json:"truncated_links"`
}

// TokenRequest optionally names the token subject.
type TokenRequest struct {
	Subject string `json:"subject"`
}

// TokenResponse is returned by POST /api/v1/auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// OrganizationView is the summary representation of an organization.
type OrganizationView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// BuildingView exposes a building's address and coordinates.
type BuildingView struct {
	ID          int64    `json:"id"`
	Country     string   `json:"country"`
	Region      *string  `json:"region,omitempty"`
	City        string   `json:"city"`
	Street      string   `json:"street"`
	HouseNumber string   `json:"house_number"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// ActivityNodeView is one node of an activity tree.
type ActivityNodeView struct {
	ID       int64              `json:"id"`
	Name     string             `json:"name"`
	Children []ActivityNodeView `json:"children"`
}

// OrganizationDetailView is an organization with buildings and activity forest.
type OrganizationDetailView struct {
	OrganizationView
	Buildings  []BuildingView     `json:"buildings"`
	Activities []ActivityNodeView `json:"activities"`
}

// BuildingOrganizationsView groups organizations under their building.
type BuildingOrganizationsView struct {
	Building      BuildingView       `json:"building"`
	Organizations []OrganizationView `json:"organizations"`
}

func toOrganizationView(org domain.Organization) OrganizationView {
	return OrganizationView{ID: org.ID, Name: org.Name, Phone: org.Phone}
}

func toOrganizationViews(orgs []domain.Organization) []OrganizationView {
	out := make([]OrganizationView, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, toOrganizationView(org))
	}
	return out
}

func toBuildingView(b domain.Building) BuildingView {
	return BuildingView{
		ID:          b.ID,
		Country:     b.Country,
		Region:      b.Region,
		City:        b.City,
		Street:      b.Street,
		HouseNumber: b.HouseNumber,
		Latitude:    b.Latitude,
		Longitude:   b.Longitude,
	}
}

func toActivityNodeViews(nodes []domain.ActivityNode) []ActivityNodeView {
	out := make([]ActivityNodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, ActivityNodeView{ID: n.ID, Name: n.Name, Children: toActivityNodeViews(n.Children)})
	}
	return out
}

func toOrganizationDetailView(d domain.OrganizationDetail) OrganizationDetailView {
	buildings := make([]BuildingView, 0, len(d.Buildings))
	for _, b := range d.Buildings {
		buildings = append(buildings, toBuildingView(b))
	}
	return OrganizationDetailView{
		OrganizationView: toOrganizationView(d.Organization),
		Buildings:        buildings,
		Activities:       toActivityNodeViews(d.Activities),
	}
}

func toBuildingOrganizationsView(g domain.BuildingWithOrganizations) BuildingOrganizationsView {
	return BuildingOrganizationsView{
		Building:      toBuildingView(g.Building),
		Organizations: toOrganizationViews(g.Organizations),
	}
}

func toBuildingOrganizationsViews(groups []domain.BuildingWithOrganizations) []BuildingOrganizationsView {
	out := make([]BuildingOrganizationsView, 0, len(groups))
	for _, g := range groups {
		out = append(out, toBuildingOrganizationsView(g))
	}
	return out
}
