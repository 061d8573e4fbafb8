package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/studex/apiserver/internal/metrics"
	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

const (
	defaultCurrency     = "PEN"
	maxCartItems        = 50
	defaultPendingLimit = 100
)

// TxRunner runs fn atomically. Repositories called with the context passed
// to fn take part in the same transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SaleRepository defines persistence operations for sales.
type SaleRepository interface {
	Get(ctx context.Context, id int) (types.Sale, error)
	Create(ctx context.Context, sale types.Sale) (types.Sale, error)
	HasCompleted(ctx context.Context, buyerID, projectID int) (bool, error)
	ListCompletedByBuyer(ctx context.Context, buyerID int) ([]types.Sale, error)
	ListBySeller(ctx context.Context, sellerID int) ([]types.Sale, error)
	ListPending(ctx context.Context, limit int) ([]types.Sale, error)
	BuyerStats(ctx context.Context, buyerID int) (types.BuyerStats, error)
	Complete(ctx context.Context, id int, receiptCode, adminNote string, at time.Time) (bool, error)
	Fail(ctx context.Context, id int, adminNote string) (bool, error)
}

// ProjectReader loads a single listing.
type ProjectReader interface {
	Get(ctx context.Context, id int) (types.Project, error)
}

// CartPruner drops purchased listings from a buyer's cart.
type CartPruner interface {
	RemoveMany(ctx context.Context, userID int, projectIDs []int) error
}

// SellerCounter tracks completed sales per seller.
type SellerCounter interface {
	IncrementTotalSales(ctx context.Context, id int) error
}

// JobPublisher hands a message to the job transport.
type JobPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// PurchaseConfig controls the simulated payment gateway.
type PurchaseConfig struct {
	Simulation      bool
	CompletionDelay time.Duration
}

// PurchaseItem is one listing a buyer wants to pay for, with the amount the
// client believes it costs.
type PurchaseItem struct {
	ProjectID int
	Amount    float64
}

// PurchaseService runs the purchase flow and the admin settlement path.
type PurchaseService struct {
	tx       TxRunner
	sales    SaleRepository
	projects ProjectReader
	cart     CartPruner
	sellers  SellerCounter
	notifier *NotificationService
	jobs     JobPublisher
	cfg      PurchaseConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewPurchaseService(
	tx TxRunner,
	sales SaleRepository,
	projects ProjectReader,
	cart CartPruner,
	sellers SellerCounter,
	notifier *NotificationService,
	jobs JobPublisher,
	cfg PurchaseConfig,
	logger *slog.Logger,
) *PurchaseService {
	return &PurchaseService{
		tx:       tx,
		sales:    sales,
		projects: projects,
		cart:     cart,
		sellers:  sellers,
		notifier: notifier,
		jobs:     jobs,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Purchase creates one pending sale for a single listing.
func (s *PurchaseService) Purchase(
	ctx context.Context,
	buyerID int,
	item PurchaseItem,
	method types.PaymentMethod,
	currency string,
) (types.Sale, error) {
	currency, err := normalizePurchase(method, currency)
	if err != nil {
		return types.Sale{}, err
	}

	project, err := s.checkEligibility(ctx, buyerID, item)
	if err != nil {
		return types.Sale{}, err
	}

	sale, err := s.sales.Create(ctx, s.newSale(project, buyerID, method, currency, saleCodePrefixSingle))
	if err != nil {
		return types.Sale{}, saleWriteError(err)
	}

	metrics.SalesCreatedTotal.WithLabelValues("single").Inc()
	s.afterPurchase(ctx, buyerID, []types.Sale{sale})
	return sale, nil
}

// PurchaseCart creates one pending sale per listing atomically: any failing
// item rolls back every sale of the batch. Purchased listings leave the cart.
func (s *PurchaseService) PurchaseCart(
	ctx context.Context,
	buyerID int,
	items []PurchaseItem,
	method types.PaymentMethod,
) ([]types.Sale, error) {
	currency, err := normalizePurchase(method, "")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, validationError("at least one project is required")
	}
	if len(items) > maxCartItems {
		return nil, validationError("a cart purchase accepts at most %d projects", maxCartItems)
	}
	projectIDs := lo.Map(items, func(item PurchaseItem, _ int) int { return item.ProjectID })
	if dups := lo.FindDuplicates(projectIDs); len(dups) > 0 {
		return nil, validationError("project %d appears more than once", dups[0])
	}

	var sales []types.Sale
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		sales = make([]types.Sale, 0, len(items))
		for _, item := range items {
			project, err := s.checkEligibility(ctx, buyerID, item)
			if err != nil {
				return fmt.Errorf("project %d: %w", item.ProjectID, err)
			}
			sale, err := s.sales.Create(ctx, s.newSale(project, buyerID, method, currency, saleCodePrefixCart))
			if err != nil {
				return saleWriteError(err)
			}
			sales = append(sales, sale)
		}
		return s.cart.RemoveMany(ctx, buyerID, projectIDs)
	})
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return nil, err
		}
		return nil, internal("failed to process cart purchase", err)
	}

	metrics.SalesCreatedTotal.WithLabelValues("cart").Add(float64(len(sales)))
	s.afterPurchase(ctx, buyerID, sales)
	return sales, nil
}

// checkEligibility applies the purchase rules in order and stops at the
// first failure.
func (s *PurchaseService) checkEligibility(ctx context.Context, buyerID int, item PurchaseItem) (types.Project, error) {
	project, err := s.projects.Get(ctx, item.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Project{}, ErrListingNotFound
		}
		return types.Project{}, internal("failed to load project", err)
	}
	if !project.Status.Purchasable() {
		return types.Project{}, ErrListingUnavailable
	}
	if project.SellerID == buyerID {
		return types.Project{}, ErrOwnListingPurchase
	}

	owned, err := s.sales.HasCompleted(ctx, buyerID, project.ID)
	if err != nil {
		return types.Project{}, internal("failed to check previous purchases", err)
	}
	if owned {
		return types.Project{}, ErrAlreadyPurchased
	}

	if !AmountMatches(item.Amount, project.Price) {
		return types.Project{}, validationError("amount %.2f does not match the project price %.2f", item.Amount, project.Price)
	}
	return project, nil
}

func (s *PurchaseService) newSale(
	project types.Project,
	buyerID int,
	method types.PaymentMethod,
	currency, prefix string,
) types.Sale {
	commission, net := SplitCommission(project.Price)
	return types.Sale{
		SaleCode:       newCode(prefix, s.now()),
		ProjectID:      project.ID,
		SellerID:       project.SellerID,
		BuyerID:        buyerID,
		SalePrice:      fromCents(toCents(project.Price)),
		Commission:     commission,
		SellerNet:      net,
		Currency:       currency,
		PaymentMethod:  method,
		PaymentStatus:  types.PaymentStatusPending,
		DeliveryStatus: types.DeliveryStatusPending,
		ProjectTitle:   project.Title,
	}
}

// afterPurchase runs the best-effort side effects of a committed purchase.
func (s *PurchaseService) afterPurchase(ctx context.Context, buyerID int, sales []types.Sale) {
	s.notifySellers(ctx, buyerID, sales)

	if !s.cfg.Simulation {
		return
	}
	job := PaymentJob{
		SaleIDs:   lo.Map(sales, func(sale types.Sale, _ int) int { return sale.ID }),
		BuyerID:   buyerID,
		NotBefore: s.now().Add(s.cfg.CompletionDelay),
	}
	if err := s.schedulePayment(ctx, job); err != nil {
		s.logger.Error("schedule payment completion",
			slog.Any("sale_ids", job.SaleIDs),
			slog.Int("user_id", buyerID),
			slog.Any("error", err),
		)
	}
}

func (s *PurchaseService) schedulePayment(ctx context.Context, job PaymentJob) error {
	if s.jobs == nil {
		return errors.New("no job publisher configured")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.jobs.Publish(ctx, PaymentChannel, data, map[string]string{"buyer_id": fmt.Sprint(job.BuyerID)})
	return err
}

// notifySellers sends one notification per distinct seller: a single-sale
// message, or an aggregate naming every listing and the total.
func (s *PurchaseService) notifySellers(ctx context.Context, buyerID int, sales []types.Sale) {
	bySeller := lo.GroupBy(sales, func(sale types.Sale) int { return sale.SellerID })
	sellerIDs := lo.Keys(bySeller)
	sort.Ints(sellerIDs)

	for _, sellerID := range sellerIDs {
		group := bySeller[sellerID]
		if len(group) == 1 {
			sale := group[0]
			s.notifier.Notify(ctx, sellerID, types.NotificationNewSale,
				"¡Nueva venta!",
				fmt.Sprintf("Tu proyecto \"%s\" fue comprado por %s %.2f. Recibirás %s %.2f.",
					sale.ProjectTitle, currencySymbol(sale.Currency), sale.SalePrice, currencySymbol(sale.Currency), sale.SellerNet),
				saleData(sale),
			)
			continue
		}

		items := lo.Map(group, func(sale types.Sale, _ int) types.SaleData { return saleData(sale) })
		titles := lo.Map(group, func(sale types.Sale, _ int) string { return "\"" + sale.ProjectTitle + "\"" })
		total := sumCents(lo.Map(group, func(sale types.Sale, _ int) float64 { return sale.SalePrice })...)
		net := sumCents(lo.Map(group, func(sale types.Sale, _ int) float64 { return sale.SellerNet })...)
		symbol := currencySymbol(group[0].Currency)
		s.notifier.Notify(ctx, sellerID, types.NotificationNewSale,
			fmt.Sprintf("¡%d nuevas ventas!", len(group)),
			fmt.Sprintf("Se vendieron tus proyectos %s por un total de %s %.2f. Recibirás %s %.2f.",
				strings.Join(titles, ", "), symbol, total, symbol, net),
			types.SaleBatchData{BuyerID: buyerID, Items: items, Total: total, SellerNet: net},
		)
	}
}

// ValidatePayment lets an admin settle a pending sale by hand. Neither party
// is notified on this path.
func (s *PurchaseService) ValidatePayment(ctx context.Context, saleID int, approve bool, note string) (types.Sale, error) {
	note = strings.TrimSpace(note)
	outcome := "failed"
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if !approve {
			ok, err := s.sales.Fail(ctx, saleID, note)
			return settleResult(ok, err)
		}

		outcome = "completed"
		sale, err := s.sales.Get(ctx, saleID)
		if err != nil {
			return settleResult(false, err)
		}
		ok, err := s.sales.Complete(ctx, saleID, "", note, s.now())
		if err := settleResult(ok, err); err != nil {
			return err
		}
		if err := s.sellers.IncrementTotalSales(ctx, sale.SellerID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return internal("failed to update seller", err)
		}
		return nil
	})
	if err != nil {
		return types.Sale{}, err
	}
	metrics.SalesSettledTotal.WithLabelValues("admin", outcome).Inc()

	sale, err := s.sales.Get(ctx, saleID)
	if err != nil {
		return types.Sale{}, internal("failed to load sale", err)
	}
	return sale, nil
}

func settleResult(ok bool, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound("sale not found")
	case store.IsConflictOn(err, completedPurchaseConstraint):
		return conflict("buyer already owns a completed purchase of this project", err)
	case err != nil:
		return internal("failed to update sale", err)
	case !ok:
		return conflict("sale is not pending", nil)
	}
	return nil
}

// History lists the completed purchases of userID. Only the user or an admin may read it.
func (s *PurchaseService) History(ctx context.Context, actor types.User, userID int) ([]types.Sale, error) {
	if actor.ID != userID && !actor.IsAdmin() {
		return nil, forbidden("you can only view your own purchases")
	}
	return s.sales.ListCompletedByBuyer(ctx, userID)
}

func (s *PurchaseService) HasPurchased(ctx context.Context, buyerID, projectID int) (bool, error) {
	return s.sales.HasCompleted(ctx, buyerID, projectID)
}

func (s *PurchaseService) Stats(ctx context.Context, buyerID int) (types.BuyerStats, error) {
	return s.sales.BuyerStats(ctx, buyerID)
}

func (s *PurchaseService) SellerSales(ctx context.Context, sellerID int) ([]types.Sale, error) {
	return s.sales.ListBySeller(ctx, sellerID)
}

func (s *PurchaseService) Pending(ctx context.Context, limit int) ([]types.Sale, error) {
	if limit <= 0 || limit > defaultPendingLimit {
		limit = defaultPendingLimit
	}
	return s.sales.ListPending(ctx, limit)
}

func normalizePurchase(method types.PaymentMethod, currency string) (string, error) {
	if !method.Valid() {
		return "", validationError("payment method must be one of YAPE, PLIN or BANCARIO")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return defaultCurrency, nil
	}
	if len(currency) != 3 {
		return "", validationError("currency must be a 3-letter code")
	}
	return currency, nil
}

func saleWriteError(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return conflict("a sale with the same code already exists, retry the purchase", err)
	}
	return internal("failed to create sale", err)
}

func saleData(sale types.Sale) types.SaleData {
	return types.SaleData{
		SaleID:       sale.ID,
		SaleCode:     sale.SaleCode,
		ProjectID:    sale.ProjectID,
		ProjectTitle: sale.ProjectTitle,
		BuyerID:      sale.BuyerID,
		Amount:       sale.SalePrice,
		SellerNet:    sale.SellerNet,
	}
}

func currencySymbol(currency string) string {
	if currency == defaultCurrency {
		return "S/"
	}
	return currency
}
