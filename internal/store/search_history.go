package store

import (
	"context"
	"database/sql"

	"github.com/studex/apiserver/types"
)

// SearchHistoryRepository handles persistence for search history entries.
type SearchHistoryRepository struct {
	db *sql.DB
}

func NewSearchHistoryRepository(db *sql.DB) *SearchHistoryRepository {
	return &SearchHistoryRepository{db: db}
}

// Upsert inserts a new active entry or reactivates and refreshes the
// existing one for the same term. created reports which happened.
func (r *SearchHistoryRepository) Upsert(ctx context.Context, userID int, term string) (types.SearchHistoryEntry, bool, error) {
	const query = `
		INSERT INTO search_history (user_id, term, is_active, searched_at)
		VALUES ($1, $2, TRUE, clock_timestamp())
		ON CONFLICT (user_id, term)
		DO UPDATE SET is_active = TRUE, searched_at = clock_timestamp()
		RETURNING id, user_id, term, is_active, searched_at, (xmax = 0)`
	var entry types.SearchHistoryEntry
	var created bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, userID, term).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Term,
		&entry.IsActive,
		&entry.SearchedAt,
		&created,
	); err != nil {
		return types.SearchHistoryEntry{}, false, err
	}
	return entry, created, nil
}

func (r *SearchHistoryRepository) CountActive(ctx context.Context, userID int) (int, error) {
	const query = `SELECT COUNT(1) FROM search_history WHERE user_id = $1 AND is_active`
	var count int
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeactivateOldest soft-deletes the n oldest active entries of a user.
func (r *SearchHistoryRepository) DeactivateOldest(ctx context.Context, userID, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	const query = `
		UPDATE search_history SET is_active = FALSE
		WHERE id IN (
			SELECT id FROM search_history
			WHERE user_id = $1 AND is_active
			ORDER BY searched_at ASC, id ASC
			LIMIT $2
		)`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, userID, n)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

func (r *SearchHistoryRepository) ListActive(ctx context.Context, userID, limit int) ([]types.SearchHistoryEntry, error) {
	const query = `
		SELECT id, user_id, term, is_active, searched_at
		FROM search_history
		WHERE user_id = $1 AND is_active
		ORDER BY searched_at DESC, id DESC
		LIMIT $2`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.SearchHistoryEntry, 0, limit)
	for rows.Next() {
		var entry types.SearchHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Term, &entry.IsActive, &entry.SearchedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Deactivate soft-deletes one entry owned by userID.
func (r *SearchHistoryRepository) Deactivate(ctx context.Context, userID, id int) error {
	const query = `UPDATE search_history SET is_active = FALSE WHERE id = $1 AND user_id = $2 AND is_active`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result)
}

func (r *SearchHistoryRepository) DeactivateAll(ctx context.Context, userID int) (int, error) {
	const query = `UPDATE search_history SET is_active = FALSE WHERE user_id = $1 AND is_active`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}
