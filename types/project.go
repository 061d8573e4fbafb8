package types

import "time"

// ProjectStatus is the publication state of a listing.
type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusReview    ProjectStatus = "review"
	ProjectStatusPublished ProjectStatus = "published"
	ProjectStatusFeatured  ProjectStatus = "featured"
)

// Purchasable reports whether listings in this state can be bought.
func (s ProjectStatus) Purchasable() bool {
	return s == ProjectStatusPublished || s == ProjectStatusFeatured
}

// CanTransitionTo reports whether an admin may move a listing from s to next.
// Listings advance draft -> review -> published -> featured; a featured listing
// may also fall back to published when it leaves the rotation.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	switch s {
	case ProjectStatusDraft:
		return next == ProjectStatusReview
	case ProjectStatusReview:
		return next == ProjectStatusPublished
	case ProjectStatusPublished:
		return next == ProjectStatusFeatured
	case ProjectStatusFeatured:
		return next == ProjectStatusPublished
	default:
		return false
	}
}

// ProjectType classifies the academic material being sold.
type ProjectType string

const (
	ProjectTypeThesis       ProjectType = "TESIS"
	ProjectTypeMonograph    ProjectType = "MONOGRAFIA"
	ProjectTypeProject      ProjectType = "PROYECTO"
	ProjectTypeEssay        ProjectType = "ENSAYO"
	ProjectTypeResearch     ProjectType = "INVESTIGACION"
	ProjectTypePresentation ProjectType = "PRESENTACION"
	ProjectTypeOther        ProjectType = "OTRO"
)

// ProjectTypes lists every known listing type in display order.
var ProjectTypes = []ProjectType{
	ProjectTypeThesis,
	ProjectTypeMonograph,
	ProjectTypeProject,
	ProjectTypeEssay,
	ProjectTypeResearch,
	ProjectTypePresentation,
	ProjectTypeOther,
}

// ValidProjectType reports whether t is a known listing type.
func ValidProjectType(t ProjectType) bool {
	for _, known := range ProjectTypes {
		if known == t {
			return true
		}
	}
	return false
}

// Project is a listing offered for sale by a seller.
type Project struct {
	ID            int           `json:"id" db:"id"`
	Title         string        `json:"title" db:"title"`
	Description   string        `json:"description" db:"description"`
	Price         float64       `json:"price" db:"price"`
	Type          ProjectType   `json:"type" db:"type"`
	Status        ProjectStatus `json:"status" db:"status"`
	University    string        `json:"university" db:"university"`
	Subject       string        `json:"subject" db:"subject"`
	Tags          []string      `json:"tags" db:"tags"`
	ViewsCount    int           `json:"viewsCount" db:"views_count"`
	DownloadCount int           `json:"downloadsCount" db:"downloads_count"`
	SellerID      int           `json:"sellerId" db:"seller_id"`
	CategoryID    int           `json:"categoryId" db:"category_id"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`

	// MainImageURL, Seller and Category are populated on read paths that join them.
	MainImageURL string         `json:"mainImageUrl,omitempty" db:"-"`
	Seller       *SellerSummary `json:"seller,omitempty" db:"-"`
	Category     *Category      `json:"category,omitempty" db:"-"`
	Files        []ProjectFile  `json:"files,omitempty" db:"-"`
}

// SellerSummary is the public subset of a seller's account.
type SellerSummary struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	University   string  `json:"university"`
	AvatarURL    string  `json:"avatarUrl"`
	SellerRating float64 `json:"sellerRating"`
	TotalSales   int     `json:"totalSales"`
}

// ProjectFile is an asset attached to a listing and hosted on the media store.
type ProjectFile struct {
	ID          int       `json:"id" db:"id"`
	ProjectID   int       `json:"projectId" db:"project_id"`
	FileName    string    `json:"fileName" db:"file_name"`
	URL         string    `json:"url" db:"url"`
	ObjectKey   string    `json:"-" db:"object_key"`
	ContentType string    `json:"contentType" db:"content_type"`
	SizeBytes   int64     `json:"sizeBytes" db:"size_bytes"`
	IsImage     bool      `json:"isImage" db:"is_image"`
	IsMain      bool      `json:"isMain" db:"is_main"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Category is a taxonomy node listings are filed under.
type Category struct {
	ID           int    `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Icon         string `json:"icon" db:"icon"`
	Color        string `json:"color" db:"color"`
	IsActive     bool   `json:"isActive" db:"is_active"`
	DisplayOrder int    `json:"displayOrder" db:"display_order"`
}

// TypeCount reports how many published listings exist for a type.
type TypeCount struct {
	Type  ProjectType `json:"type"`
	Count int         `json:"count"`
}
