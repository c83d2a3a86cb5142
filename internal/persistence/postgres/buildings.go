package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/directory/internal/domain"
	"example.com/directory/internal/geo"
)

const buildingColumns = `b.id, b.country, b.region, b.city, b.street, b.house_number, b.latitude, b.longitude`

// FindBuilding returns the building or nil when absent.
func (s *Store) FindBuilding(ctx context.Context, id int64) (*domain.Building, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+buildingColumns+` FROM buildings b WHERE b.id = $1`, id)
	if err != nil {
		return nil, err
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBuilding)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// BuildingsInRadius returns located buildings inside the bounding box of the circle. Callers
// apply the exact distance predicate.
func (s *Store) BuildingsInRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]domain.Building, error) {
	return s.BuildingsInBBox(ctx, geo.BoundsAround(center, radiusKm))
}

// BuildingsInBBox returns located buildings inside box, bounds included, ordered by id.
func (s *Store) BuildingsInBBox(ctx context.Context, box geo.BBox) ([]domain.Building, error) {
	const query = `SELECT ` + buildingColumns + `
        FROM buildings b
        WHERE b.latitude IS NOT NULL AND b.longitude IS NOT NULL
          AND b.latitude BETWEEN $1 AND $2
          AND b.longitude BETWEEN $3 AND $4
        ORDER BY b.id`

	rows, err := s.pool.Query(ctx, query, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanBuilding)
}

// InsertBuilding stores b and returns its id.
func (s *Store) InsertBuilding(ctx context.Context, b domain.Building) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO buildings (country, region, city, street, house_number, latitude, longitude)
         VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		b.Country, b.Region, b.City, b.Street, b.HouseNumber, b.Latitude, b.Longitude,
	).Scan(&id)
	return id, err
}

func scanBuilding(row pgx.CollectableRow) (domain.Building, error) {
	var b domain.Building
	err := row.Scan(&b.ID, &b.Country, &b.Region, &b.City, &b.Street, &b.HouseNumber, &b.Latitude, &b.Longitude)
	return b, err
}
