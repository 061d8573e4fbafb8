package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

// MaxActiveSearches caps the active history entries kept per user.
const MaxActiveSearches = 50

const maxSearchTermLength = 200

// SearchHistoryRepository defines persistence operations for search history.
type SearchHistoryRepository interface {
	Upsert(ctx context.Context, userID int, term string) (types.SearchHistoryEntry, bool, error)
	CountActive(ctx context.Context, userID int) (int, error)
	DeactivateOldest(ctx context.Context, userID, n int) (int, error)
	ListActive(ctx context.Context, userID, limit int) ([]types.SearchHistoryEntry, error)
	Deactivate(ctx context.Context, userID, id int) error
	DeactivateAll(ctx context.Context, userID int) (int, error)
}

// SearchHistoryService keeps a bounded, deduplicated list of past searches.
type SearchHistoryService struct {
	tx   TxRunner
	repo SearchHistoryRepository
}

func NewSearchHistoryService(tx TxRunner, repo SearchHistoryRepository) *SearchHistoryService {
	return &SearchHistoryService{tx: tx, repo: repo}
}

// NormalizeSearchTerm trims and lowercases a term so equal searches share one row.
func NormalizeSearchTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Record stores term for userID, reactivating an earlier entry with the same
// normalized term. Afterwards the oldest active entries are deactivated until
// at most MaxActiveSearches remain.
func (s *SearchHistoryService) Record(ctx context.Context, userID int, term string) (types.SearchHistoryEntry, error) {
	term = NormalizeSearchTerm(term)
	if term == "" {
		return types.SearchHistoryEntry{}, validationError("search term is required")
	}
	if utf8.RuneCountInString(term) > maxSearchTermLength {
		return types.SearchHistoryEntry{}, validationError("search term must be at most %d characters", maxSearchTermLength)
	}

	var entry types.SearchHistoryEntry
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		entry, _, err = s.repo.Upsert(ctx, userID, term)
		if err != nil {
			return err
		}

		active, err := s.repo.CountActive(ctx, userID)
		if err != nil {
			return err
		}
		if overflow := active - MaxActiveSearches; overflow > 0 {
			if _, err := s.repo.DeactivateOldest(ctx, userID, overflow); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return types.SearchHistoryEntry{}, internal("failed to record search", err)
	}
	return entry, nil
}

func (s *SearchHistoryService) List(ctx context.Context, userID, limit int) ([]types.SearchHistoryEntry, error) {
	if limit <= 0 || limit > MaxActiveSearches {
		limit = MaxActiveSearches
	}
	return s.repo.ListActive(ctx, userID, limit)
}

// Delete soft-deletes one entry of userID.
func (s *SearchHistoryService) Delete(ctx context.Context, userID, id int) error {
	if err := s.repo.Deactivate(ctx, userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("search history entry not found")
		}
		return err
	}
	return nil
}

func (s *SearchHistoryService) Clear(ctx context.Context, userID int) (int, error) {
	return s.repo.DeactivateAll(ctx, userID)
}
