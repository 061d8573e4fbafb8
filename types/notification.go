package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// NotificationType names the event a notification reports.
type NotificationType string

const (
	NotificationNewSale         NotificationType = "NUEVA_VENTA"
	NotificationPurchaseSuccess NotificationType = "COMPRA_EXITOSA"
	NotificationPurchaseFailed  NotificationType = "COMPRA_FALLIDA"
	NotificationNewComment      NotificationType = "NUEVO_COMENTARIO"
	NotificationSystem          NotificationType = "SISTEMA"
)

// Notification is a polled, user-facing event record.
type Notification struct {
	ID      int              `json:"id" db:"id"`
	UserID  int              `json:"userId" db:"user_id"`
	Type    NotificationType `json:"type" db:"type"`
	Title   string           `json:"title" db:"title"`
	Message string           `json:"message" db:"message"`

	// DataKind tags the concrete type held in Data.
	DataKind string           `json:"dataKind,omitempty" db:"-"`
	Data     NotificationData `json:"data,omitempty" db:"data"`

	IsRead    bool       `json:"isRead" db:"is_read"`
	ReadAt    *time.Time `json:"readAt,omitempty" db:"read_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// NotificationData is the typed extra payload attached to a notification.
type NotificationData interface {
	DataKind() string
}

const (
	DataKindSale           = "sale"
	DataKindSaleBatch      = "sale_batch"
	DataKindPurchaseResult = "purchase_result"
	DataKindComment        = "comment"
)

// SaleData describes a single listing sold to a buyer.
type SaleData struct {
	SaleID       int     `json:"saleId"`
	SaleCode     string  `json:"saleCode"`
	ProjectID    int     `json:"projectId"`
	ProjectTitle string  `json:"projectTitle"`
	BuyerID      int     `json:"buyerId"`
	Amount       float64 `json:"amount"`
	SellerNet    float64 `json:"sellerNet"`
}

func (SaleData) DataKind() string { return DataKindSale }

// SaleBatchData aggregates several listings of one seller bought together.
type SaleBatchData struct {
	BuyerID   int        `json:"buyerId"`
	Items     []SaleData `json:"items"`
	Total     float64    `json:"total"`
	SellerNet float64    `json:"sellerNet"`
}

func (SaleBatchData) DataKind() string { return DataKindSaleBatch }

// PurchaseResultData reports the outcome of a payment to the buyer.
type PurchaseResultData struct {
	SaleIDs     []int    `json:"saleIds"`
	SaleCodes   []string `json:"saleCodes,omitempty"`
	ReceiptCode string   `json:"receiptCode,omitempty"`
	Total       float64  `json:"total"`
	Reason      string   `json:"reason,omitempty"`
}

func (PurchaseResultData) DataKind() string { return DataKindPurchaseResult }

// CommentData points at a new comment on a seller's listing.
type CommentData struct {
	ProjectID int `json:"projectId"`
	CommentID int `json:"commentId"`
	AuthorID  int `json:"authorId"`
}

func (CommentData) DataKind() string { return DataKindComment }

type notificationEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeNotificationData serialises data into its tagged JSON form.
// A nil payload encodes to nil so the column stays NULL.
func EncodeNotificationData(data NotificationData) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(notificationEnvelope{Kind: data.DataKind(), Payload: payload})
}

// DecodeNotificationData restores a payload written by EncodeNotificationData.
func DecodeNotificationData(raw []byte) (NotificationData, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env notificationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	var data NotificationData
	switch env.Kind {
	case DataKindSale:
		var d SaleData
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, err
		}
		data = d
	case DataKindSaleBatch:
		var d SaleBatchData
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, err
		}
		data = d
	case DataKindPurchaseResult:
		var d PurchaseResultData
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, err
		}
		data = d
	case DataKindComment:
		var d CommentData
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, err
		}
		data = d
	default:
		return nil, fmt.Errorf("unknown notification data kind %q", env.Kind)
	}
	return data, nil
}
