package types

import "time"

// Favorite marks a listing the user wants to keep an eye on.
type Favorite struct {
	UserID    int       `json:"userId" db:"user_id"`
	ProjectID int       `json:"projectId" db:"project_id"`
	AddedAt   time.Time `json:"addedAt" db:"added_at"`
	Project   *Project  `json:"project,omitempty" db:"-"`
}

// CartItem is a listing waiting in the user's cart.
type CartItem struct {
	UserID    int       `json:"userId" db:"user_id"`
	ProjectID int       `json:"projectId" db:"project_id"`
	AddedAt   time.Time `json:"addedAt" db:"added_at"`
	Project   *Project  `json:"project,omitempty" db:"-"`
}

// Comment is feedback left by a user on a listing.
type Comment struct {
	ID         int       `json:"id" db:"id"`
	ProjectID  int       `json:"projectId" db:"project_id"`
	UserID     int       `json:"userId" db:"user_id"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	AuthorName string    `json:"authorName,omitempty" db:"-"`
}

// SearchHistoryEntry is a normalized term the user searched for.
// Entries are soft-deleted through IsActive.
type SearchHistoryEntry struct {
	ID         int       `json:"id" db:"id"`
	UserID     int       `json:"userId" db:"user_id"`
	Term       string    `json:"term" db:"term"`
	IsActive   bool      `json:"isActive" db:"is_active"`
	SearchedAt time.Time `json:"searchedAt" db:"searched_at"`
}
