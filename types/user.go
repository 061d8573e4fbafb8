package types

import "time"

// Role values recognised by the authorization layer.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// User represents an account in the marketplace.
// A single account can both buy and sell; Role only widens privileges.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the unique login address of the user.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// University is the institution the user studies at, if provided.
	University string `json:"university" db:"university"`

	// AvatarURL points to the user's profile picture on the media host.
	AvatarURL string `json:"avatarUrl" db:"avatar_url"`

	// Role indicates the user's authorization level within the system
	// ("buyer", "seller" or "admin").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// Accounts created through Google sign-in have no password hash.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// GoogleID is the subject identifier issued by Google for OAuth logins.
	GoogleID string `json:"-" db:"google_id"`

	// IsVerified reports whether the email address has been confirmed.
	IsVerified bool `json:"isVerified" db:"is_verified"`

	// IsBlocked is set by administrators to deny access to the account.
	IsBlocked bool `json:"isBlocked" db:"is_blocked"`

	// IsActive is cleared when the account is deactivated.
	IsActive bool `json:"isActive" db:"is_active"`

	// SellerRating is the average rating received as a seller.
	SellerRating float64 `json:"sellerRating" db:"seller_rating"`

	// TotalSales counts the completed sales made by this user as a seller.
	TotalSales int `json:"totalSales" db:"total_sales"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanSignIn reports whether the account may authenticate.
func (u User) CanSignIn() bool {
	return u.IsActive && !u.IsBlocked
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	default:
		return false
	}
}
