package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"example.com/directory/internal/domain"
	"example.com/directory/internal/persistence"
)

// FindOrganization loads an organization with its buildings and activity ids.
func (s *Store) FindOrganization(ctx context.Context, id int64) (*domain.OrganizationRecord, error) {
	var org domain.Organization
	err := s.pool.QueryRow(ctx, `SELECT id, name, phone FROM organizations WHERE id = $1`, id).
		Scan(&org.ID, &org.Name, &org.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	records, err := s.loadRelations(ctx, []domain.Organization{org})
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// SearchOrganizations matches names case-insensitively. limit 0 returns every match.
func (s *Store) SearchOrganizations(ctx context.Context, text string, limit int) ([]domain.OrganizationRecord, error) {
	query := `SELECT id, name, phone FROM organizations WHERE name ILIKE $1 ORDER BY id`
	args := []any{"%" + escapeLike(text) + "%"}
	tail, tailArgs := persistence.LimitClause(domain.Page{Limit: limit}, 2)
	query += tail
	args = append(args, tailArgs...)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orgs, err := pgx.CollectRows(rows, scanOrganization)
	if err != nil {
		return nil, err
	}
	return s.loadRelations(ctx, orgs)
}

// OrganizationsByActivityIDs returns distinct organizations linked to any of activityIDs.
func (s *Store) OrganizationsByActivityIDs(ctx context.Context, activityIDs []int64, page domain.Page) ([]domain.Organization, error) {
	if len(activityIDs) == 0 {
		return []domain.Organization{}, nil
	}
	query := `SELECT o.id, o.name, o.phone
        FROM organizations o
        WHERE EXISTS (
            SELECT 1 FROM organization_activities oa
            WHERE oa.organization_id = o.id AND oa.activity_id = ANY($1)
        )
        ORDER BY o.id`
	tail, tailArgs := persistence.LimitClause(page, 2)

	rows, err := s.pool.Query(ctx, query+tail, append([]any{activityIDs}, tailArgs...)...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanOrganization)
}

// OrganizationsByBuilding returns organizations housed in buildingID.
func (s *Store) OrganizationsByBuilding(ctx context.Context, buildingID int64, page domain.Page) ([]domain.Organization, error) {
	query := `SELECT o.id, o.name, o.phone
        FROM organizations o
        JOIN organization_buildings ob ON ob.organization_id = o.id
        WHERE ob.building_id = $1
        ORDER BY o.id`
	tail, tailArgs := persistence.LimitClause(page, 2)

	rows, err := s.pool.Query(ctx, query+tail, append([]any{buildingID}, tailArgs...)...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanOrganization)
}

// GroupByBuildingIDs fetches the organizations of every listed building in one query.
func (s *Store) GroupByBuildingIDs(ctx context.Context, buildingIDs []int64) (map[int64][]domain.Organization, error) {
	grouped := make(map[int64][]domain.Organization, len(buildingIDs))
	if len(buildingIDs) == 0 {
		return grouped, nil
	}

	const query = `SELECT ob.building_id, o.id, o.name, o.phone
        FROM organization_buildings ob
        JOIN organizations o ON o.id = ob.organization_id
        WHERE ob.building_id = ANY($1)
        ORDER BY ob.building_id, o.id`

	rows, err := s.pool.Query(ctx, query, buildingIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var buildingID int64
		var org domain.Organization
		if err := rows.Scan(&buildingID, &org.ID, &org.Name, &org.Phone); err != nil {
			return nil, err
		}
		grouped[buildingID] = append(grouped[buildingID], org)
	}
	return grouped, rows.Err()
}

// InsertOrganization stores org with its building and activity links in one transaction.
func (s *Store) InsertOrganization(ctx context.Context, org domain.Organization, buildingIDs, activityIDs []int64) (int64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO organizations (name, phone) VALUES ($1, $2) RETURNING id`, org.Name, org.Phone,
	).Scan(&id); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, b := range buildingIDs {
		batch.Queue(`INSERT INTO organization_buildings (organization_id, building_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, b)
	}
	for _, a := range activityIDs {
		batch.Queue(`INSERT INTO organization_activities (organization_id, activity_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, a)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// loadRelations attaches buildings and activity ids to orgs with two batched queries.
func (s *Store) loadRelations(ctx context.Context, orgs []domain.Organization) ([]domain.OrganizationRecord, error) {
	records := make([]domain.OrganizationRecord, len(orgs))
	if len(orgs) == 0 {
		return records, nil
	}
	ids := make([]int64, len(orgs))
	index := make(map[int64]int, len(orgs))
	for i, org := range orgs {
		ids[i] = org.ID
		index[org.ID] = i
		records[i] = domain.OrganizationRecord{Organization: org, Buildings: []domain.Building{}, ActivityIDs: []int64{}}
	}

	rows, err := s.pool.Query(ctx, `SELECT ob.organization_id, `+buildingColumns+`
        FROM organization_buildings ob
        JOIN buildings b ON b.id = ob.building_id
        WHERE ob.organization_id = ANY($1)
        ORDER BY ob.organization_id, b.id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var orgID int64
		var b domain.Building
		if err := rows.Scan(&orgID, &b.ID, &b.Country, &b.Region, &b.City, &b.Street, &b.HouseNumber, &b.Latitude, &b.Longitude); err != nil {
			return nil, err
		}
		i := index[orgID]
		records[i].Buildings = append(records[i].Buildings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	actRows, err := s.pool.Query(ctx, `SELECT organization_id, activity_id
        FROM organization_activities
        WHERE organization_id = ANY($1)
        ORDER BY organization_id, activity_id`, ids)
	if err != nil {
		return nil, err
	}
	defer actRows.Close()
	for actRows.Next() {
		var orgID, activityID int64
		if err := actRows.Scan(&orgID, &activityID); err != nil {
			return nil, err
		}
		i := index[orgID]
		records[i].ActivityIDs = append(records[i].ActivityIDs, activityID)
	}
	return records, actRows.Err()
}

func scanOrganization(row pgx.CollectableRow) (domain.Organization, error) {
	var o domain.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Phone)
	return o, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
