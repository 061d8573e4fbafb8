package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/studex/apiserver/types"
)

// CartRepository handles persistence for cart items.
type CartRepository struct {
	m membershipRepository
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{m: membershipRepository{db: db, table: "cart_items"}}
}

// Add returns ErrConflict when the listing is already in the cart.
func (r *CartRepository) Add(ctx context.Context, userID, projectID int) (types.CartItem, error) {
	at, err := r.m.add(ctx, userID, projectID)
	if err != nil {
		return types.CartItem{}, err
	}
	return types.CartItem{UserID: userID, ProjectID: projectID, AddedAt: at}, nil
}

func (r *CartRepository) Remove(ctx context.Context, userID, projectID int) error {
	return r.m.remove(ctx, userID, projectID)
}

func (r *CartRepository) Exists(ctx context.Context, userID, projectID int) (bool, error) {
	return r.m.exists(ctx, userID, projectID)
}

func (r *CartRepository) List(ctx context.Context, userID int) ([]types.CartItem, error) {
	projects, added, err := r.m.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]types.CartItem, 0, len(projects))
	for i := range projects {
		items = append(items, types.CartItem{
			UserID:    userID,
			ProjectID: projects[i].ID,
			AddedAt:   added[i],
			Project:   &projects[i],
		})
	}
	return items, nil
}

func (r *CartRepository) Clear(ctx context.Context, userID int) (int, error) {
	result, err := conn(ctx, r.m.db).ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// RemoveMany drops the given listings from the cart; missing rows are ignored.
func (r *CartRepository) RemoveMany(ctx context.Context, userID int, projectIDs []int) error {
	if len(projectIDs) == 0 {
		return nil
	}
	ids := make([]int64, len(projectIDs))
	for i, id := range projectIDs {
		ids[i] = int64(id)
	}
	const query = `DELETE FROM cart_items WHERE user_id = $1 AND project_id = ANY($2)`
	_, err := conn(ctx, r.m.db).ExecContext(ctx, query, userID, pq.Array(ids))
	return err
}
