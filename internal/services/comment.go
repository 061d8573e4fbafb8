package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

const maxCommentLength = 1000

// CommentRepository defines persistence operations for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment types.Comment) (types.Comment, error)
	Get(ctx context.Context, id int) (types.Comment, error)
	ListByProject(ctx context.Context, projectID int) ([]types.Comment, error)
	Delete(ctx context.Context, id int) error
}

// CommentService manages listing comments.
type CommentService struct {
	comments CommentRepository
	projects ProjectReader
	notifier *NotificationService
}

func NewCommentService(comments CommentRepository, projects ProjectReader, notifier *NotificationService) *CommentService {
	return &CommentService{comments: comments, projects: projects, notifier: notifier}
}

func (s *CommentService) List(ctx context.Context, projectID int) ([]types.Comment, error) {
	if _, err := loadListing(ctx, s.projects, projectID); err != nil {
		return nil, err
	}
	return s.comments.ListByProject(ctx, projectID)
}

// Create stores a comment and tells the seller about it unless the seller
// wrote it.
func (s *CommentService) Create(ctx context.Context, author types.User, projectID int, content string) (types.Comment, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > maxCommentLength {
		return types.Comment{}, validationError("content must be between 1 and %d characters", maxCommentLength)
	}

	project, err := loadListing(ctx, s.projects, projectID)
	if err != nil {
		return types.Comment{}, err
	}

	comment, err := s.comments.Create(ctx, types.Comment{
		ProjectID: projectID,
		UserID:    author.ID,
		Content:   content,
	})
	if err != nil {
		return types.Comment{}, internal("failed to create comment", err)
	}
	comment.AuthorName = author.Name

	if project.SellerID != author.ID {
		s.notifier.Notify(ctx, project.SellerID, types.NotificationNewComment,
			"Nuevo comentario",
			fmt.Sprintf("%s comentó en tu proyecto \"%s\".", author.Name, project.Title),
			types.CommentData{ProjectID: projectID, CommentID: comment.ID, AuthorID: author.ID},
		)
	}
	return comment, nil
}

// Delete removes a comment. Only its author or an admin may do so.
func (s *CommentService) Delete(ctx context.Context, actor types.User, id int) error {
	comment, err := s.comments.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("comment not found")
		}
		return err
	}
	if comment.UserID != actor.ID && !actor.IsAdmin() {
		return forbidden("you can only delete your own comments")
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("comment not found")
		}
		return err
	}
	return nil
}
