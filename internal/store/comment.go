package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/studex/apiserver/types"
)

// CommentRepository handles persistence for listing comments.
type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) Create(ctx context.Context, comment types.Comment) (types.Comment, error) {
	comment.CreatedAt = time.Now()

	const query = `
		INSERT INTO comments (project_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		comment.ProjectID,
		comment.UserID,
		comment.Content,
		comment.CreatedAt,
	).Scan(&comment.ID); err != nil {
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *CommentRepository) Get(ctx context.Context, id int) (types.Comment, error) {
	const query = `
		SELECT c.id, c.project_id, c.user_id, c.content, c.created_at, u.name
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id = $1`
	var comment types.Comment
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&comment.ID,
		&comment.ProjectID,
		&comment.UserID,
		&comment.Content,
		&comment.CreatedAt,
		&comment.AuthorName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Comment{}, ErrNotFound
		}
		return types.Comment{}, err
	}
	return comment, nil
}

func (r *CommentRepository) ListByProject(ctx context.Context, projectID int) ([]types.Comment, error) {
	const query = `
		SELECT c.id, c.project_id, c.user_id, c.content, c.created_at, u.name
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.project_id = $1
		ORDER BY c.created_at DESC, c.id DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]types.Comment, 0, 8)
	for rows.Next() {
		var comment types.Comment
		if err := rows.Scan(
			&comment.ID,
			&comment.ProjectID,
			&comment.UserID,
			&comment.Content,
			&comment.CreatedAt,
			&comment.AuthorName,
		); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return comments, nil
}

func (r *CommentRepository) Delete(ctx context.Context, id int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result)
}
