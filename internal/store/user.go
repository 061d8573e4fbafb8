package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/studex/apiserver/types"
)

const userColumns = `id, email, name, university, avatar_url, role, password_hash, google_id,
	is_verified, is_blocked, is_active, seller_rating, total_sales, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row scanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.University,
		&user.AvatarURL,
		&user.Role,
		&user.PasswordHash,
		&user.GoogleID,
		&user.IsVerified,
		&user.IsBlocked,
		&user.IsActive,
		&user.SellerRating,
		&user.TotalSales,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, strings.ToLower(email)))
}

func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE google_id = $1 AND google_id <> ''`
	return scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, googleID))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Email = strings.ToLower(user.Email)

	const query = `
		INSERT INTO users (email, name, university, avatar_url, role, password_hash, google_id,
			is_verified, is_blocked, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Name,
		user.University,
		user.AvatarURL,
		user.Role,
		user.PasswordHash,
		user.GoogleID,
		user.IsVerified,
		user.IsBlocked,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET name = $1,
			university = $2,
			avatar_url = $3,
			role = $4,
			password_hash = $5,
			google_id = $6,
			is_verified = $7,
			is_blocked = $8,
			is_active = $9,
			updated_at = $10
		WHERE id = $11`
	result, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		user.Name,
		user.University,
		user.AvatarURL,
		user.Role,
		user.PasswordHash,
		user.GoogleID,
		user.IsVerified,
		user.IsBlocked,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translate(err)
	}
	if err := affectedOrNotFound(result); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// IncrementTotalSales bumps the seller's completed-sales counter.
func (r *UserRepository) IncrementTotalSales(ctx context.Context, id int) error {
	const query = `UPDATE users SET total_sales = total_sales + 1, updated_at = NOW() WHERE id = $1`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result)
}
