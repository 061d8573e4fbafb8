package types

import "time"

// PaymentMethod identifies how the buyer pays for a sale.
type PaymentMethod string

const (
	PaymentMethodYape     PaymentMethod = "YAPE"
	PaymentMethodPlin     PaymentMethod = "PLIN"
	PaymentMethodBancario PaymentMethod = "BANCARIO"
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodYape, PaymentMethodPlin, PaymentMethodBancario:
		return true
	default:
		return false
	}
}

// PaymentStatus is the settlement state of a sale.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// DeliveryStatus tracks whether the purchased material was released to the buyer.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusCompleted DeliveryStatus = "completed"
)

// Sale represents one purchase of one listing.
// The amounts satisfy Commission + SellerNet == SalePrice.
type Sale struct {
	// ID is the unique identifier of the sale.
	ID int `json:"id" db:"id"`

	// SaleCode is a human-legible reference shown to buyers and sellers.
	SaleCode string `json:"saleCode" db:"sale_code"`

	// ProjectID identifies the purchased listing.
	ProjectID int `json:"projectId" db:"project_id"`

	// SellerID identifies the owner of the listing at purchase time.
	SellerID int `json:"sellerId" db:"seller_id"`

	// BuyerID identifies the purchasing user.
	BuyerID int `json:"buyerId" db:"buyer_id"`

	// SalePrice is the amount charged to the buyer.
	SalePrice float64 `json:"salePrice" db:"sale_price"`

	// Commission is the platform's cut of SalePrice.
	Commission float64 `json:"commission" db:"commission"`

	// SellerNet is what the seller receives after commission.
	SellerNet float64 `json:"sellerNet" db:"seller_net"`

	// Currency is the ISO code of the amounts, "PEN" unless the caller says otherwise.
	Currency string `json:"currency" db:"currency"`

	// PaymentMethod is the method chosen by the buyer.
	PaymentMethod PaymentMethod `json:"paymentMethod" db:"payment_method"`

	// PaymentStatus is pending until the payment is confirmed or rejected.
	PaymentStatus PaymentStatus `json:"paymentStatus" db:"payment_status"`

	// DeliveryStatus becomes completed together with the payment.
	DeliveryStatus DeliveryStatus `json:"deliveryStatus" db:"delivery_status"`

	// ReceiptCode is the payment receipt reference, set on completion.
	ReceiptCode string `json:"receiptCode,omitempty" db:"receipt_code"`

	// AdminNote is recorded when an administrator validates the payment.
	AdminNote string `json:"adminNote,omitempty" db:"admin_note"`

	// PaymentDate is stamped when the payment completes.
	PaymentDate *time.Time `json:"paymentDate,omitempty" db:"payment_date"`

	// DeliveryDate is stamped when the material is released to the buyer.
	DeliveryDate *time.Time `json:"deliveryDate,omitempty" db:"delivery_date"`

	// CreatedAt is the timestamp when the sale was requested.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent status change.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	// ProjectTitle is filled on read paths that join the listing.
	ProjectTitle string `json:"projectTitle,omitempty" db:"-"`
}

// BuyerStats summarises a buyer's purchase history.
type BuyerStats struct {
	TotalPurchases   int        `json:"totalPurchases"`
	CompletedCount   int        `json:"completedCount"`
	PendingCount     int        `json:"pendingCount"`
	FailedCount      int        `json:"failedCount"`
	TotalSpent       float64    `json:"totalSpent"`
	LastPurchaseDate *time.Time `json:"lastPurchaseDate,omitempty"`
}
