package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

const (
	defaultRecentLimit = 8
	maxRecentLimit     = 50
	maxCatalogPageSize = 50
)

// CatalogRepository defines the listing reads used by the catalog.
type CatalogRepository interface {
	Get(ctx context.Context, id int) (types.Project, error)
	Search(ctx context.Context, filter store.CatalogFilter) ([]types.Project, store.CatalogStats, error)
	ListByStatus(ctx context.Context, status types.ProjectStatus, limit int) ([]types.Project, error)
	ListRecent(ctx context.Context, limit int) ([]types.Project, error)
	TypeCounts(ctx context.Context) ([]types.TypeCount, error)
	IncrementViews(ctx context.Context, id int) error
	ListFiles(ctx context.Context, projectID int) ([]types.ProjectFile, error)
}

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	ListActive(ctx context.Context) ([]types.Category, error)
	Get(ctx context.Context, id int) (types.Category, error)
}

// FeaturedCache stores the featured listing set between rotations.
type FeaturedCache interface {
	GetFeatured(ctx context.Context) ([]types.Project, bool, error)
	SetFeatured(ctx context.Context, projects []types.Project) error
	InvalidateFeatured(ctx context.Context) error
}

// CatalogService serves listing reads.
type CatalogService struct {
	projects      CatalogRepository
	categories    CategoryRepository
	cache         FeaturedCache
	history       *SearchHistoryService
	featuredLimit int
	logger        *slog.Logger
}

// NewCatalogService builds the catalog. cache may be nil.
func NewCatalogService(
	projects CatalogRepository,
	categories CategoryRepository,
	cache FeaturedCache,
	history *SearchHistoryService,
	featuredLimit int,
	logger *slog.Logger,
) *CatalogService {
	if featuredLimit <= 0 {
		featuredLimit = 6
	}
	return &CatalogService{
		projects:      projects,
		categories:    categories,
		cache:         cache,
		history:       history,
		featuredLimit: featuredLimit,
		logger:        logger,
	}
}

// Explore returns one page of purchasable listings matching filter. When
// viewerID is set and the filter carries a search term, the term is added to
// the viewer's search history on a best-effort basis.
func (s *CatalogService) Explore(ctx context.Context, viewerID int, filter store.CatalogFilter) ([]types.Project, store.CatalogStats, error) {
	if filter.Sort != "" && !store.ValidSort(filter.Sort) {
		return nil, store.CatalogStats{}, validationError("unknown sort %q", filter.Sort)
	}
	if filter.Type != "" && !types.ValidProjectType(filter.Type) {
		return nil, store.CatalogStats{}, validationError("unknown project type %q", filter.Type)
	}
	if (filter.MinPrice != nil && *filter.MinPrice < 0) || (filter.MaxPrice != nil && *filter.MaxPrice < 0) {
		return nil, store.CatalogStats{}, validationError("price filters must not be negative")
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, store.CatalogStats{}, validationError("minPrice must not exceed maxPrice")
	}
	if filter.Limit <= 0 || filter.Limit > maxCatalogPageSize {
		filter.Limit = 12
	}

	projects, stats, err := s.projects.Search(ctx, filter)
	if err != nil {
		return nil, store.CatalogStats{}, err
	}

	if viewerID > 0 && strings.TrimSpace(filter.Search) != "" && s.history != nil {
		if _, err := s.history.Record(ctx, viewerID, filter.Search); err != nil {
			s.logger.Warn("record search history", slog.Int("user_id", viewerID), slog.Any("error", err))
		}
	}
	return projects, stats, nil
}

// Featured returns the current featured listings, served from the cache
// when one is configured.
func (s *CatalogService) Featured(ctx context.Context) ([]types.Project, error) {
	if s.cache != nil {
		projects, ok, err := s.cache.GetFeatured(ctx)
		if err != nil {
			s.logger.Warn("featured cache read", slog.Any("error", err))
		} else if ok {
			return projects, nil
		}
	}

	projects, err := s.projects.ListByStatus(ctx, types.ProjectStatusFeatured, s.featuredLimit)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetFeatured(ctx, projects); err != nil {
			s.logger.Warn("featured cache write", slog.Any("error", err))
		}
	}
	return projects, nil
}

func (s *CatalogService) Recent(ctx context.Context, limit int) ([]types.Project, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	return s.projects.ListRecent(ctx, limit)
}

func (s *CatalogService) Categories(ctx context.Context) ([]types.Category, error) {
	return s.categories.ListActive(ctx)
}

func (s *CatalogService) Types(ctx context.Context) ([]types.TypeCount, error) {
	return s.projects.TypeCounts(ctx)
}

// Get returns a listing with its preview images and counts the view.
// Listings that are not purchasable are only visible to their seller and admins.
func (s *CatalogService) Get(ctx context.Context, viewer *types.User, id int) (types.Project, error) {
	project, err := s.projects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Project{}, ErrListingNotFound
		}
		return types.Project{}, err
	}
	if !project.Status.Purchasable() && !canManage(viewer, project) {
		return types.Project{}, ErrListingNotFound
	}

	files, err := s.projects.ListFiles(ctx, id)
	if err != nil {
		return types.Project{}, err
	}
	project.Files = previewFiles(files)

	if err := s.projects.IncrementViews(ctx, id); err != nil {
		s.logger.Warn("increment views", slog.Int("project_id", id), slog.Any("error", err))
	} else {
		project.ViewsCount++
	}
	return project, nil
}

// previewFiles keeps only the images; the downloadable material stays
// behind the purchase check.
func previewFiles(files []types.ProjectFile) []types.ProjectFile {
	images := make([]types.ProjectFile, 0, len(files))
	for _, file := range files {
		if file.IsImage {
			images = append(images, file)
		}
	}
	return images
}

func canManage(viewer *types.User, project types.Project) bool {
	return viewer != nil && (viewer.ID == project.SellerID || viewer.IsAdmin())
}
