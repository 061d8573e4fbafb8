package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/studex/apiserver/internal/storage"
	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

const (
	maxListingTitle = 200
	maxListingPrice = 10000
	maxListingTags  = 10
	maxListingFiles = 10
)

// ListingRepository defines the listing writes and owner reads.
type ListingRepository interface {
	Get(ctx context.Context, id int) (types.Project, error)
	Create(ctx context.Context, project types.Project) (types.Project, error)
	UpdateStatus(ctx context.Context, id int, status types.ProjectStatus) error
	ListBySeller(ctx context.Context, sellerID int) ([]types.Project, error)
	IncrementDownloads(ctx context.Context, id int) error
	AddFile(ctx context.Context, file types.ProjectFile) (types.ProjectFile, error)
	ListFiles(ctx context.Context, projectID int) ([]types.ProjectFile, error)
	SetMainFile(ctx context.Context, projectID, fileID int) error
}

// MediaUploader stores a file on the media host and returns its public URL.
type MediaUploader interface {
	Upload(ctx context.Context, obj storage.Object) (string, error)
}

// PurchaseChecker answers whether a buyer owns a completed purchase.
type PurchaseChecker interface {
	HasCompleted(ctx context.Context, buyerID, projectID int) (bool, error)
}

// ListingDraft carries the fields a seller submits for a new listing.
type ListingDraft struct {
	Title       string
	Description string
	Price       float64
	Type        types.ProjectType
	CategoryID  int
	University  string
	Subject     string
	Tags        []string
}

// Upload is one file attached to a new listing.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

func (u Upload) isImage() bool {
	return strings.HasPrefix(strings.ToLower(u.ContentType), "image/")
}

// ListingService handles seller and admin operations on listings.
type ListingService struct {
	tx         TxRunner
	projects   ListingRepository
	categories CategoryRepository
	purchases  PurchaseChecker
	media      MediaUploader
	cache      FeaturedCache
	logger     *slog.Logger
}

// NewListingService builds the service. media and cache may be nil.
func NewListingService(
	tx TxRunner,
	projects ListingRepository,
	categories CategoryRepository,
	purchases PurchaseChecker,
	media MediaUploader,
	cache FeaturedCache,
	logger *slog.Logger,
) *ListingService {
	return &ListingService{
		tx:         tx,
		projects:   projects,
		categories: categories,
		purchases:  purchases,
		media:      media,
		cache:      cache,
		logger:     logger,
	}
}

// Create stores a listing as draft, uploads every file, records them and
// submits the listing for review. The steps are not atomic: a failed upload
// leaves the draft and the files stored so far in place.
func (s *ListingService) Create(ctx context.Context, sellerID int, draft ListingDraft, uploads []Upload) (types.Project, error) {
	if err := s.validateDraft(ctx, &draft); err != nil {
		return types.Project{}, err
	}
	if len(uploads) == 0 {
		return types.Project{}, validationError("at least one file is required")
	}
	if len(uploads) > maxListingFiles {
		return types.Project{}, validationError("at most %d files are allowed", maxListingFiles)
	}
	if s.media == nil {
		return types.Project{}, newError(KindUnavailable, "file storage is not configured", nil)
	}

	project, err := s.projects.Create(ctx, types.Project{
		Title:       draft.Title,
		Description: draft.Description,
		Price:       draft.Price,
		Type:        draft.Type,
		Status:      types.ProjectStatusDraft,
		University:  draft.University,
		Subject:     draft.Subject,
		Tags:        draft.Tags,
		SellerID:    sellerID,
		CategoryID:  draft.CategoryID,
	})
	if err != nil {
		return types.Project{}, internal("failed to create project", err)
	}

	mainChosen := false
	for _, upload := range uploads {
		key := storage.ProjectObjectKey(project.ID, upload.FileName)
		url, err := s.media.Upload(ctx, storage.Object{
			Key:         key,
			FileName:    upload.FileName,
			ContentType: upload.ContentType,
			Size:        upload.Size,
			Body:        upload.Content,
		})
		if err != nil {
			s.logger.Error("upload project file",
				slog.Int("project_id", project.ID),
				slog.String("file", upload.FileName),
				slog.Any("error", err),
			)
			return project, internal(fmt.Sprintf("project %d was saved as draft but uploading %q failed", project.ID, upload.FileName), err)
		}

		isMain := upload.isImage() && !mainChosen
		file, err := s.projects.AddFile(ctx, types.ProjectFile{
			ProjectID:   project.ID,
			FileName:    upload.FileName,
			URL:         url,
			ObjectKey:   key,
			ContentType: upload.ContentType,
			SizeBytes:   upload.Size,
			IsImage:     upload.isImage(),
			IsMain:      isMain,
		})
		if err != nil {
			return project, internal(fmt.Sprintf("project %d was saved as draft but recording %q failed", project.ID, upload.FileName), err)
		}
		mainChosen = mainChosen || isMain
		project.Files = append(project.Files, file)
		if isMain {
			project.MainImageURL = file.URL
		}
	}

	if err := s.projects.UpdateStatus(ctx, project.ID, types.ProjectStatusReview); err != nil {
		return project, internal("failed to submit project for review", err)
	}
	project.Status = types.ProjectStatusReview
	return project, nil
}

func (s *ListingService) validateDraft(ctx context.Context, draft *ListingDraft) error {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	draft.University = strings.TrimSpace(draft.University)
	draft.Subject = strings.TrimSpace(draft.Subject)

	if n := utf8.RuneCountInString(draft.Title); n < 3 || n > maxListingTitle {
		return validationError("title must be between 3 and %d characters", maxListingTitle)
	}
	if draft.Description == "" {
		return validationError("description is required")
	}
	if draft.Price <= 0 || draft.Price > maxListingPrice {
		return validationError("price must be greater than 0 and at most %d", maxListingPrice)
	}
	draft.Price = fromCents(toCents(draft.Price))
	if !types.ValidProjectType(draft.Type) {
		return validationError("unknown project type %q", draft.Type)
	}

	draft.Tags = lo.Uniq(lo.Compact(lo.Map(draft.Tags, func(tag string, _ int) string {
		return strings.ToLower(strings.TrimSpace(tag))
	})))
	if len(draft.Tags) > maxListingTags {
		return validationError("at most %d tags are allowed", maxListingTags)
	}

	category, err := s.categories.Get(ctx, draft.CategoryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validationError("unknown category %d", draft.CategoryID)
		}
		return internal("failed to load category", err)
	}
	if !category.IsActive {
		return validationError("category %d is not active", draft.CategoryID)
	}
	return nil
}

// UpdateStatus moves a listing along its publication lifecycle.
func (s *ListingService) UpdateStatus(ctx context.Context, id int, status types.ProjectStatus) (types.Project, error) {
	project, err := s.projects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Project{}, ErrListingNotFound
		}
		return types.Project{}, err
	}
	if !project.Status.CanTransitionTo(status) {
		return types.Project{}, validationError("cannot move a project from %s to %s", project.Status, status)
	}
	if err := s.projects.UpdateStatus(ctx, id, status); err != nil {
		return types.Project{}, err
	}

	if status == types.ProjectStatusFeatured || project.Status == types.ProjectStatusFeatured {
		s.invalidateFeatured(ctx)
	}
	project.Status = status
	return project, nil
}

// SetMainImage makes fileID the only main image of a listing.
func (s *ListingService) SetMainImage(ctx context.Context, actor types.User, projectID, fileID int) error {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrListingNotFound
		}
		return err
	}
	if !canManage(&actor, project) {
		return forbidden("only the seller can change the main image")
	}

	files, err := s.projects.ListFiles(ctx, projectID)
	if err != nil {
		return err
	}
	file, ok := lo.Find(files, func(f types.ProjectFile) bool { return f.ID == fileID })
	if !ok {
		return notFound("file not found")
	}
	if !file.IsImage {
		return validationError("only images can be the main image")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.projects.SetMainFile(ctx, projectID, fileID)
	})
	if err != nil {
		return internal("failed to set main image", err)
	}
	if project.Status == types.ProjectStatusFeatured {
		s.invalidateFeatured(ctx)
	}
	return nil
}

// Download returns every file of a listing to its seller, an admin, or a
// buyer holding a completed purchase, and counts the download.
func (s *ListingService) Download(ctx context.Context, actor types.User, projectID int) ([]types.ProjectFile, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}

	if !canManage(&actor, project) {
		owned, err := s.purchases.HasCompleted(ctx, actor.ID, projectID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, forbidden("purchase this project to download it")
		}
	}

	files, err := s.projects.ListFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.projects.IncrementDownloads(ctx, projectID); err != nil {
		s.logger.Warn("increment downloads", slog.Int("project_id", projectID), slog.Any("error", err))
	}
	return files, nil
}

// Mine lists every listing of a seller regardless of status.
func (s *ListingService) Mine(ctx context.Context, sellerID int) ([]types.Project, error) {
	return s.projects.ListBySeller(ctx, sellerID)
}

func (s *ListingService) invalidateFeatured(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateFeatured(ctx); err != nil {
		s.logger.Warn("invalidate featured cache", slog.Any("error", err))
	}
}
