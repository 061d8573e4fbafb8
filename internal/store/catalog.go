package store

import (
	"strconv"
	"strings"

	"github.com/studex/apiserver/types"
)

// Sort keys accepted by the catalog.
const (
	SortNewest     = "newest"
	SortOldest     = "oldest"
	SortPriceAsc   = "price_asc"
	SortPriceDesc  = "price_desc"
	SortRating     = "rating"
	SortPopularity = "popularity"
)

// CatalogFilter narrows a catalog listing. Zero values mean "no filter".
type CatalogFilter struct {
	Search     string
	Type       types.ProjectType
	CategoryID int
	University string
	Subject    string
	MinPrice   *float64
	MaxPrice   *float64
	Sort       string
	Offset     int
	Limit      int
}

// CatalogStats are aggregates over every listing matching a filter.
type CatalogStats struct {
	Total        int `json:"total"`
	Universities int `json:"universities"`
	Categories   int `json:"categories"`
}

type whereBuilder struct {
	clauses []string
	args    []any
}

// arg registers a bind value and returns its positional placeholder.
func (b *whereBuilder) arg(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *whereBuilder) add(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *whereBuilder) sql() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

// buildCatalogWhere composes the predicate shared by the page query and
// the stats query so both always describe the same set of listings.
func buildCatalogWhere(f CatalogFilter) *whereBuilder {
	b := &whereBuilder{}

	b.add("p.status IN (" + b.arg(string(types.ProjectStatusPublished)) + ", " + b.arg(string(types.ProjectStatusFeatured)) + ")")

	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := b.arg("%" + escapeLike(term) + "%")
		b.add("(p.title ILIKE " + pattern +
			" OR p.description ILIKE " + pattern +
			" OR EXISTS (SELECT 1 FROM unnest(p.tags) AS tag WHERE tag ILIKE " + pattern + "))")
	}
	if f.Type != "" {
		b.add("p.type = " + b.arg(string(f.Type)))
	}
	if f.CategoryID > 0 {
		b.add("p.category_id = " + b.arg(f.CategoryID))
	}
	if university := strings.TrimSpace(f.University); university != "" {
		b.add("p.university ILIKE " + b.arg("%"+escapeLike(university)+"%"))
	}
	if subject := strings.TrimSpace(f.Subject); subject != "" {
		b.add("p.subject ILIKE " + b.arg("%"+escapeLike(subject)+"%"))
	}
	if f.MinPrice != nil {
		b.add("p.price >= " + b.arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		b.add("p.price <= " + b.arg(*f.MaxPrice))
	}
	return b
}

func catalogOrderBy(sort string) string {
	switch sort {
	case SortOldest:
		return "p.created_at ASC, p.id ASC"
	case SortPriceAsc:
		return "p.price ASC, p.id DESC"
	case SortPriceDesc:
		return "p.price DESC, p.id DESC"
	case SortRating:
		return "u.seller_rating DESC, p.id DESC"
	case SortPopularity:
		return "(p.views_count + p.downloads_count) DESC, p.id DESC"
	default:
		return "p.created_at DESC, p.id DESC"
	}
}

// ValidSort reports whether sort is a known catalog sort key.
func ValidSort(sort string) bool {
	switch sort {
	case SortNewest, SortOldest, SortPriceAsc, SortPriceDesc, SortRating, SortPopularity:
		return true
	default:
		return false
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
