package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/studex/apiserver/types"
)

// Listing rows join the seller and category so catalog cards carry
// everything they show.
const listingColumns = `
	p.id, p.title, p.description, p.price, p.type, p.status, p.university, p.subject, p.tags,
	p.views_count, p.downloads_count, p.seller_id, p.category_id, p.created_at, p.updated_at,
	u.name, u.university, u.avatar_url, u.seller_rating, u.total_sales,
	c.name, c.icon, c.color, c.is_active, c.display_order,
	COALESCE((SELECT f.url FROM project_files f WHERE f.project_id = p.id AND f.is_main LIMIT 1), '')`

const listingFrom = `
	FROM projects p
	JOIN users u ON u.id = p.seller_id
	JOIN categories c ON c.id = p.category_id`

const listingSelect = `SELECT ` + listingColumns + listingFrom

// ProjectRepository handles persistence for listings and their files.
type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// scanListing reads a listingColumns row; extra receives any columns
// selected after them.
func scanListing(row scanner, extra ...any) (types.Project, error) {
	var project types.Project
	seller := types.SellerSummary{}
	category := types.Category{}
	var tags pq.StringArray
	dest := []any{
		&project.ID,
		&project.Title,
		&project.Description,
		&project.Price,
		&project.Type,
		&project.Status,
		&project.University,
		&project.Subject,
		&tags,
		&project.ViewsCount,
		&project.DownloadCount,
		&project.SellerID,
		&project.CategoryID,
		&project.CreatedAt,
		&project.UpdatedAt,
		&seller.Name,
		&seller.University,
		&seller.AvatarURL,
		&seller.SellerRating,
		&seller.TotalSales,
		&category.Name,
		&category.Icon,
		&category.Color,
		&category.IsActive,
		&category.DisplayOrder,
		&project.MainImageURL,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Project{}, ErrNotFound
		}
		return types.Project{}, err
	}

	project.Tags = []string(tags)
	if project.Tags == nil {
		project.Tags = []string{}
	}
	seller.ID = project.SellerID
	category.ID = project.CategoryID
	project.Seller = &seller
	project.Category = &category
	return project, nil
}

func scanListings(rows *sql.Rows, capacity int) ([]types.Project, error) {
	defer rows.Close()

	projects := make([]types.Project, 0, capacity)
	for rows.Next() {
		project, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *ProjectRepository) Get(ctx context.Context, id int) (types.Project, error) {
	query := listingSelect + ` WHERE p.id = $1`
	return scanListing(conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

// Search returns one page of purchasable listings plus stats computed over
// the same predicate as the page.
func (r *ProjectRepository) Search(ctx context.Context, filter CatalogFilter) ([]types.Project, CatalogStats, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 1 {
		filter.Limit = 12
	}

	where := buildCatalogWhere(filter)
	q := conn(ctx, r.db)

	statsQuery := `
		SELECT COUNT(1), COUNT(DISTINCT NULLIF(p.university, '')), COUNT(DISTINCT p.category_id)
		FROM projects p
		JOIN users u ON u.id = p.seller_id` + where.sql()
	var stats CatalogStats
	if err := q.QueryRowContext(ctx, statsQuery, where.args...).Scan(
		&stats.Total,
		&stats.Universities,
		&stats.Categories,
	); err != nil {
		return nil, CatalogStats{}, err
	}

	args := append([]any{}, where.args...)
	limitPos := strconv.Itoa(len(args) + 1)
	offsetPos := strconv.Itoa(len(args) + 2)
	args = append(args, filter.Limit, filter.Offset)

	listQuery := listingSelect + where.sql() +
		` ORDER BY ` + catalogOrderBy(filter.Sort) +
		` LIMIT $` + limitPos + ` OFFSET $` + offsetPos
	rows, err := q.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, CatalogStats{}, err
	}
	projects, err := scanListings(rows, filter.Limit)
	if err != nil {
		return nil, CatalogStats{}, err
	}
	return projects, stats, nil
}

func (r *ProjectRepository) ListByStatus(ctx context.Context, status types.ProjectStatus, limit int) ([]types.Project, error) {
	query := listingSelect + ` WHERE p.status = $1 ORDER BY p.created_at DESC, p.id DESC LIMIT $2`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, err
	}
	return scanListings(rows, limit)
}

// ListRecent returns the newest purchasable listings.
func (r *ProjectRepository) ListRecent(ctx context.Context, limit int) ([]types.Project, error) {
	query := listingSelect + ` WHERE p.status IN ('published', 'featured') ORDER BY p.created_at DESC, p.id DESC LIMIT $1`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return scanListings(rows, limit)
}

func (r *ProjectRepository) ListBySeller(ctx context.Context, sellerID int) ([]types.Project, error) {
	query := listingSelect + ` WHERE p.seller_id = $1 ORDER BY p.created_at DESC, p.id DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, sellerID)
	if err != nil {
		return nil, err
	}
	return scanListings(rows, 16)
}

func (r *ProjectRepository) TypeCounts(ctx context.Context) ([]types.TypeCount, error) {
	const query = `
		SELECT type, COUNT(1)
		FROM projects
		WHERE status IN ('published', 'featured')
		GROUP BY type`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[types.ProjectType]int)
	for rows.Next() {
		var t types.ProjectType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]types.TypeCount, 0, len(types.ProjectTypes))
	for _, t := range types.ProjectTypes {
		result = append(result, types.TypeCount{Type: t, Count: counts[t]})
	}
	return result, nil
}

func (r *ProjectRepository) Create(ctx context.Context, project types.Project) (types.Project, error) {
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now
	if project.Tags == nil {
		project.Tags = []string{}
	}

	const query = `
		INSERT INTO projects (title, description, price, type, status, university, subject, tags,
			seller_id, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		project.Title,
		project.Description,
		project.Price,
		string(project.Type),
		string(project.Status),
		project.University,
		project.Subject,
		pq.Array(project.Tags),
		project.SellerID,
		project.CategoryID,
		project.CreatedAt,
		project.UpdatedAt,
	).Scan(&project.ID); err != nil {
		return types.Project{}, translate(err)
	}
	return project, nil
}

func (r *ProjectRepository) UpdateStatus(ctx context.Context, id int, status types.ProjectStatus) error {
	const query = `UPDATE projects SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, string(status), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result)
}

func (r *ProjectRepository) IncrementViews(ctx context.Context, id int) error {
	const query = `UPDATE projects SET views_count = views_count + 1 WHERE id = $1`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result)
}

func (r *ProjectRepository) IncrementDownloads(ctx context.Context, id int) error {
	const query = `UPDATE projects SET downloads_count = downloads_count + 1 WHERE id = $1`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(result)
}

// DemoteFeatured moves every featured listing back to published.
func (r *ProjectRepository) DemoteFeatured(ctx context.Context) (int, error) {
	const query = `UPDATE projects SET status = 'published', updated_at = NOW() WHERE status = 'featured'`
	result, err := conn(ctx, r.db).ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// PromoteRecent features the limit most recent published listings.
func (r *ProjectRepository) PromoteRecent(ctx context.Context, limit int) (int, error) {
	const query = `
		UPDATE projects SET status = 'featured', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM projects
			WHERE status = 'published'
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		)`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, limit)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (r *ProjectRepository) AddFile(ctx context.Context, file types.ProjectFile) (types.ProjectFile, error) {
	file.CreatedAt = time.Now()

	const query = `
		INSERT INTO project_files (project_id, file_name, url, object_key, content_type, size_bytes, is_image, is_main, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		file.ProjectID,
		file.FileName,
		file.URL,
		file.ObjectKey,
		file.ContentType,
		file.SizeBytes,
		file.IsImage,
		file.IsMain,
		file.CreatedAt,
	).Scan(&file.ID); err != nil {
		return types.ProjectFile{}, translate(err)
	}
	return file, nil
}

func (r *ProjectRepository) ListFiles(ctx context.Context, projectID int) ([]types.ProjectFile, error) {
	const query = `
		SELECT id, project_id, file_name, url, object_key, content_type, size_bytes, is_image, is_main, created_at
		FROM project_files
		WHERE project_id = $1
		ORDER BY is_main DESC, id ASC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := make([]types.ProjectFile, 0, 4)
	for rows.Next() {
		var file types.ProjectFile
		if err := rows.Scan(
			&file.ID,
			&file.ProjectID,
			&file.FileName,
			&file.URL,
			&file.ObjectKey,
			&file.ContentType,
			&file.SizeBytes,
			&file.IsImage,
			&file.IsMain,
			&file.CreatedAt,
		); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// SetMainFile clears the current main image and flags fileID instead.
// Callers run it inside a transaction so the flag stays unique.
func (r *ProjectRepository) SetMainFile(ctx context.Context, projectID, fileID int) error {
	q := conn(ctx, r.db)
	if _, err := q.ExecContext(ctx, `UPDATE project_files SET is_main = FALSE WHERE project_id = $1 AND is_main`, projectID); err != nil {
		return err
	}
	result, err := q.ExecContext(ctx, `UPDATE project_files SET is_main = TRUE WHERE project_id = $1 AND id = $2 AND is_image`, projectID, fileID)
	if err != nil {
		return translate(err)
	}
	return affectedOrNotFound(result)
}
