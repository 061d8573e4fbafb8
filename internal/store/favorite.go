package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/studex/apiserver/types"
)

// membershipRepository backs the (user, listing) relations shared by
// favorites and the cart; only the table differs.
type membershipRepository struct {
	db    *sql.DB
	table string
}

func (r membershipRepository) add(ctx context.Context, userID, projectID int) (time.Time, error) {
	now := time.Now()
	query := `INSERT INTO ` + r.table + ` (user_id, project_id, added_at) VALUES ($1, $2, $3)`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, userID, projectID, now); err != nil {
		return time.Time{}, translate(err)
	}
	return now, nil
}

func (r membershipRepository) remove(ctx context.Context, userID, projectID int) error {
	query := `DELETE FROM ` + r.table + ` WHERE user_id = $1 AND project_id = $2`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, userID, projectID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result)
}

func (r membershipRepository) exists(ctx context.Context, userID, projectID int) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ` + r.table + ` WHERE user_id = $1 AND project_id = $2)`
	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, userID, projectID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// list returns the member listings newest first, each with its added time.
func (r membershipRepository) list(ctx context.Context, userID int) ([]types.Project, []time.Time, error) {
	query := `SELECT ` + listingColumns + `, m.added_at` + listingFrom + `
		JOIN ` + r.table + ` m ON m.project_id = p.id
		WHERE m.user_id = $1
		ORDER BY m.added_at DESC, p.id DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	projects := make([]types.Project, 0, 8)
	added := make([]time.Time, 0, 8)
	for rows.Next() {
		var at time.Time
		project, err := scanListing(rows, &at)
		if err != nil {
			return nil, nil, err
		}
		projects = append(projects, project)
		added = append(added, at)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return projects, added, nil
}

// FavoriteRepository handles persistence for favorites.
type FavoriteRepository struct {
	m membershipRepository
}

func NewFavoriteRepository(db *sql.DB) *FavoriteRepository {
	return &FavoriteRepository{m: membershipRepository{db: db, table: "favorites"}}
}

// Add returns ErrConflict when the listing is already a favorite.
func (r *FavoriteRepository) Add(ctx context.Context, userID, projectID int) (types.Favorite, error) {
	at, err := r.m.add(ctx, userID, projectID)
	if err != nil {
		return types.Favorite{}, err
	}
	return types.Favorite{UserID: userID, ProjectID: projectID, AddedAt: at}, nil
}

func (r *FavoriteRepository) Remove(ctx context.Context, userID, projectID int) error {
	return r.m.remove(ctx, userID, projectID)
}

func (r *FavoriteRepository) Exists(ctx context.Context, userID, projectID int) (bool, error) {
	return r.m.exists(ctx, userID, projectID)
}

func (r *FavoriteRepository) List(ctx context.Context, userID int) ([]types.Favorite, error) {
	projects, added, err := r.m.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	favorites := make([]types.Favorite, 0, len(projects))
	for i := range projects {
		favorites = append(favorites, types.Favorite{
			UserID:    userID,
			ProjectID: projects[i].ID,
			AddedAt:   added[i],
			Project:   &projects[i],
		})
	}
	return favorites, nil
}
