package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/studex/apiserver/types"
)

const saleColumns = `s.id, s.sale_code, s.project_id, s.seller_id, s.buyer_id, s.sale_price, s.commission, s.seller_net,
	s.currency, s.payment_method, s.payment_status, s.delivery_status, s.receipt_code, s.admin_note,
	s.payment_date, s.delivery_date, s.created_at, s.updated_at, p.title`

const saleFrom = ` FROM sales s JOIN projects p ON p.id = s.project_id`

// SaleRepository handles persistence for sales.
type SaleRepository struct {
	db *sql.DB
}

func NewSaleRepository(db *sql.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

func scanSale(row scanner) (types.Sale, error) {
	var sale types.Sale
	var paymentDate, deliveryDate sql.NullTime
	err := row.Scan(
		&sale.ID,
		&sale.SaleCode,
		&sale.ProjectID,
		&sale.SellerID,
		&sale.BuyerID,
		&sale.SalePrice,
		&sale.Commission,
		&sale.SellerNet,
		&sale.Currency,
		&sale.PaymentMethod,
		&sale.PaymentStatus,
		&sale.DeliveryStatus,
		&sale.ReceiptCode,
		&sale.AdminNote,
		&paymentDate,
		&deliveryDate,
		&sale.CreatedAt,
		&sale.UpdatedAt,
		&sale.ProjectTitle,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Sale{}, ErrNotFound
		}
		return types.Sale{}, err
	}
	if paymentDate.Valid {
		sale.PaymentDate = &paymentDate.Time
	}
	if deliveryDate.Valid {
		sale.DeliveryDate = &deliveryDate.Time
	}
	return sale, nil
}

func (r *SaleRepository) list(ctx context.Context, query string, args ...any) ([]types.Sale, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]types.Sale, 0, 8)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *SaleRepository) Get(ctx context.Context, id int) (types.Sale, error) {
	query := `SELECT ` + saleColumns + saleFrom + ` WHERE s.id = $1`
	return scanSale(conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

func (r *SaleRepository) Create(ctx context.Context, sale types.Sale) (types.Sale, error) {
	now := time.Now()
	sale.CreatedAt = now
	sale.UpdatedAt = now

	const query = `
		INSERT INTO sales (sale_code, project_id, seller_id, buyer_id, sale_price, commission, seller_net,
			currency, payment_method, payment_status, delivery_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(
		ctx,
		query,
		sale.SaleCode,
		sale.ProjectID,
		sale.SellerID,
		sale.BuyerID,
		sale.SalePrice,
		sale.Commission,
		sale.SellerNet,
		sale.Currency,
		string(sale.PaymentMethod),
		string(sale.PaymentStatus),
		string(sale.DeliveryStatus),
		sale.CreatedAt,
		sale.UpdatedAt,
	).Scan(&sale.ID); err != nil {
		return types.Sale{}, translate(err)
	}
	return sale, nil
}

// HasCompleted reports whether buyerID already owns a completed sale of projectID.
func (r *SaleRepository) HasCompleted(ctx context.Context, buyerID, projectID int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM sales
			WHERE buyer_id = $1 AND project_id = $2 AND payment_status = 'completed'
		)`
	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, buyerID, projectID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *SaleRepository) ListCompletedByBuyer(ctx context.Context, buyerID int) ([]types.Sale, error) {
	query := `SELECT ` + saleColumns + saleFrom + `
		WHERE s.buyer_id = $1 AND s.payment_status = 'completed'
		ORDER BY s.created_at DESC, s.id DESC`
	return r.list(ctx, query, buyerID)
}

func (r *SaleRepository) ListBySeller(ctx context.Context, sellerID int) ([]types.Sale, error) {
	query := `SELECT ` + saleColumns + saleFrom + `
		WHERE s.seller_id = $1
		ORDER BY s.created_at DESC, s.id DESC`
	return r.list(ctx, query, sellerID)
}

func (r *SaleRepository) ListPending(ctx context.Context, limit int) ([]types.Sale, error) {
	query := `SELECT ` + saleColumns + saleFrom + `
		WHERE s.payment_status = 'pending'
		ORDER BY s.created_at ASC, s.id ASC
		LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *SaleRepository) BuyerStats(ctx context.Context, buyerID int) (types.BuyerStats, error) {
	const query = `
		SELECT COUNT(1),
		       COUNT(1) FILTER (WHERE payment_status = 'completed'),
		       COUNT(1) FILTER (WHERE payment_status = 'pending'),
		       COUNT(1) FILTER (WHERE payment_status = 'failed'),
		       COALESCE(SUM(sale_price) FILTER (WHERE payment_status = 'completed'), 0),
		       MAX(created_at)
		FROM sales
		WHERE buyer_id = $1`
	var stats types.BuyerStats
	var last sql.NullTime
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, buyerID).Scan(
		&stats.TotalPurchases,
		&stats.CompletedCount,
		&stats.PendingCount,
		&stats.FailedCount,
		&stats.TotalSpent,
		&last,
	); err != nil {
		return types.BuyerStats{}, err
	}
	if last.Valid {
		stats.LastPurchaseDate = &last.Time
	}
	return stats, nil
}

// Complete settles a pending sale. It reports false when the sale exists
// but is no longer pending, which makes repeated completion a no-op.
func (r *SaleRepository) Complete(ctx context.Context, id int, receiptCode, adminNote string, at time.Time) (bool, error) {
	const query = `
		UPDATE sales
		SET payment_status = 'completed',
			delivery_status = 'completed',
			payment_date = $1,
			delivery_date = $1,
			receipt_code = $2,
			admin_note = $3,
			updated_at = $1
		WHERE id = $4 AND payment_status = 'pending'`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, at, receiptCode, adminNote, id)
	if err != nil {
		return false, translate(err)
	}
	return r.transitioned(ctx, id, result)
}

// Fail marks a pending sale as failed.
func (r *SaleRepository) Fail(ctx context.Context, id int, adminNote string) (bool, error) {
	const query = `
		UPDATE sales
		SET payment_status = 'failed',
			admin_note = $1,
			updated_at = NOW()
		WHERE id = $2 AND payment_status = 'pending'`
	result, err := conn(ctx, r.db).ExecContext(ctx, query, adminNote, id)
	if err != nil {
		return false, err
	}
	return r.transitioned(ctx, id, result)
}

func (r *SaleRepository) transitioned(ctx context.Context, id int, result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}
