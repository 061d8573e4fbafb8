package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/studex/apiserver/types"
)

// CategoryRepository reads the listing taxonomy.
type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) ListActive(ctx context.Context) ([]types.Category, error) {
	const query = `
		SELECT id, name, icon, color, is_active, display_order
		FROM categories
		WHERE is_active
		ORDER BY display_order, name`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]types.Category, 0, 8)
	for rows.Next() {
		var category types.Category
		if err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.Icon,
			&category.Color,
			&category.IsActive,
			&category.DisplayOrder,
		); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *CategoryRepository) Get(ctx context.Context, id int) (types.Category, error) {
	const query = `SELECT id, name, icon, color, is_active, display_order FROM categories WHERE id = $1`
	var category types.Category
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&category.ID,
		&category.Name,
		&category.Icon,
		&category.Color,
		&category.IsActive,
		&category.DisplayOrder,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, ErrNotFound
		}
		return types.Category{}, err
	}
	return category, nil
}
