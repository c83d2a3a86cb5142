package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/directory/internal/domain"
)

// Store provides Postgres-backed persistence for the directory, the activity closure table and
// the outbox.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateNode inserts the activity, its self row, the ancestor rows within the depth cap and an
// activity.created outbox event in one transaction. An unknown parent rolls everything back.
func (s *Store) CreateNode(ctx context.Context, name string, parentID *int64) (*domain.NodeCreation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var activity domain.Activity
	if err := tx.QueryRow(ctx,
		`INSERT INTO activities (name) VALUES ($1) RETURNING id, name`, name,
	).Scan(&activity.ID, &activity.Name); err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}

	var parentRows []domain.OwnershipEdge
	if parentID != nil {
		rows, err := tx.Query(ctx,
			`SELECT owner_id, owned_id, depth FROM activity_ownership WHERE owned_id = $1 ORDER BY depth`, *parentID)
		if err != nil {
			return nil, fmt.Errorf("load parent ownership: %w", err)
		}
		parentRows, err = pgx.CollectRows(rows, scanEdge)
		if err != nil {
			return nil, fmt.Errorf("load parent ownership: %w", err)
		}
	}

	edges, truncated, err := domain.PropagateEdges(activity.ID, parentID, parentRows)
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for _, edge := range edges {
		batch.Queue(`INSERT INTO activity_ownership (owner_id, owned_id, depth) VALUES ($1, $2, $3)`,
			edge.OwnerID, edge.OwnedID, edge.Depth)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("insert ownership rows: %w", err)
	}

	creation := &domain.NodeCreation{Activity: activity, ParentID: parentID, Edges: edges, Truncated: truncated}
	if err := insertActivityCreated(ctx, tx, creation); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return creation, nil
}

// OwnedIDs returns ownerID and every activity it owns.
func (s *Store) OwnedIDs(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT owned_id FROM activity_ownership WHERE owner_id = $1 ORDER BY owned_id`, ownerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Paths returns a root-first path for each leaf id, in request order. Leaves without rows get
// an empty path.
func (s *Store) Paths(ctx context.Context, leafIDs []int64) ([]domain.Path, error) {
	if len(leafIDs) == 0 {
		return []domain.Path{}, nil
	}

	const query = `SELECT o.owned_id, o.owner_id, a.name
        FROM activity_ownership o
        JOIN activities a ON a.id = o.owner_id
        WHERE o.owned_id = ANY($1)
        ORDER BY o.owned_id, o.depth DESC`

	rows, err := s.pool.Query(ctx, query, leafIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byLeaf := make(map[int64]domain.Path, len(leafIDs))
	for rows.Next() {
		var leaf int64
		var el domain.PathElement
		if err := rows.Scan(&leaf, &el.ID, &el.Name); err != nil {
			return nil, err
		}
		byLeaf[leaf] = append(byLeaf[leaf], el)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	paths := make([]domain.Path, 0, len(leafIDs))
	for _, leaf := range leafIDs {
		path := byLeaf[leaf]
		if path == nil {
			path = domain.Path{}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// FindActivityByName resolves a name case-insensitively; the lowest id wins on duplicates.
func (s *Store) FindActivityByName(ctx context.Context, name string) (*domain.Activity, error) {
	var a domain.Activity
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM activities WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`, name,
	).Scan(&a.ID, &a.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ActivityExists reports whether id names an activity.
func (s *Store) ActivityExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM activities WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func scanEdge(row pgx.CollectableRow) (domain.OwnershipEdge, error) {
	var e domain.OwnershipEdge
	err := row.Scan(&e.OwnerID, &e.OwnedID, &e.Depth)
	return e, err
}
