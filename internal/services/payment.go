package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/studex/apiserver/internal/metrics"
	"github.com/studex/apiserver/internal/mq"
	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

// PaymentChannel carries payment completion jobs.
const PaymentChannel = "payments.complete"

const completedPurchaseConstraint = "uq_sales_completed_purchase"

const simulatedPaymentNote = "Pago simulado confirmado automáticamente"

// PaymentJob asks the worker to settle a batch of sales once NotBefore has passed.
type PaymentJob struct {
	SaleIDs   []int     `json:"saleIds"`
	BuyerID   int       `json:"buyerId"`
	NotBefore time.Time `json:"notBefore"`
}

// JobSubscriber consumes jobs from the job transport.
type JobSubscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

type settleOutcome int

const (
	outcomeCompleted settleOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (o settleOutcome) String() string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

var errDuplicatePurchase = errors.New("buyer already owns a completed purchase of this project")

// PaymentWorker completes simulated payments. Completion is keyed on sale id
// and only touches pending sales, so redelivered jobs are harmless.
type PaymentWorker struct {
	tx       TxRunner
	sales    SaleRepository
	sellers  SellerCounter
	notifier *NotificationService
	logger   *slog.Logger
	now      func() time.Time
}

func NewPaymentWorker(
	tx TxRunner,
	sales SaleRepository,
	sellers SellerCounter,
	notifier *NotificationService,
	logger *slog.Logger,
) *PaymentWorker {
	return &PaymentWorker{
		tx:       tx,
		sales:    sales,
		sellers:  sellers,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Run consumes payment jobs until ctx is cancelled.
func (w *PaymentWorker) Run(ctx context.Context, sub JobSubscriber) error {
	w.logger.Info("payment worker started", slog.String("channel", PaymentChannel))
	err := sub.Subscribe(ctx, PaymentChannel, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one delivery. Malformed jobs are acknowledged and
// dropped; a cancelled wait is returned so the broker redelivers the job.
func (w *PaymentWorker) Handle(ctx context.Context, msg mq.Message) error {
	var job PaymentJob
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		w.logger.Error("drop malformed payment job", slog.String("message_id", msg.ID), slog.Any("error", err))
		return nil
	}

	if wait := job.NotBefore.Sub(w.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	w.Complete(ctx, job)
	return nil
}

// Complete settles every sale of job and reports the result to the buyer.
// It never fails: problems end in a log line and a failure notification.
func (w *PaymentWorker) Complete(ctx context.Context, job PaymentJob) {
	receipt := newCode(receiptCodePrefix, w.now())

	var completed, failed []types.Sale
	var reasons []string
	for _, saleID := range lo.Uniq(job.SaleIDs) {
		sale, outcome, err := w.settle(ctx, saleID, receipt)
		metrics.SalesSettledTotal.WithLabelValues("worker", outcome.String()).Inc()

		switch outcome {
		case outcomeCompleted:
			completed = append(completed, sale)
		case outcomeFailed:
			w.logger.Error("payment completion failed",
				slog.Int("sale_id", saleID),
				slog.Int("user_id", job.BuyerID),
				slog.Any("error", err),
			)
			sale.ID = saleID
			failed = append(failed, sale)
			reasons = append(reasons, err.Error())
		default:
			w.logger.Info("payment completion skipped", slog.Int("sale_id", saleID), slog.Any("reason", err))
		}
	}

	if len(completed) > 0 {
		total := sumCents(lo.Map(completed, func(sale types.Sale, _ int) float64 { return sale.SalePrice })...)
		codes := lo.Map(completed, func(sale types.Sale, _ int) string { return sale.SaleCode })
		w.notifier.Notify(ctx, job.BuyerID, types.NotificationPurchaseSuccess,
			"¡Compra exitosa!",
			fmt.Sprintf("Tu pago fue confirmado. Ya puedes descargar %s. Recibo: %s.", describeCount(len(completed)), receipt),
			types.PurchaseResultData{
				SaleIDs:     lo.Map(completed, func(sale types.Sale, _ int) int { return sale.ID }),
				SaleCodes:   codes,
				ReceiptCode: receipt,
				Total:       total,
			},
		)
	}
	if len(failed) > 0 {
		w.notifier.Notify(ctx, job.BuyerID, types.NotificationPurchaseFailed,
			"Compra fallida",
			fmt.Sprintf("No pudimos confirmar el pago de %s. Inténtalo nuevamente o contacta a soporte.", describeCount(len(failed))),
			types.PurchaseResultData{
				SaleIDs:   lo.Map(failed, func(sale types.Sale, _ int) int { return sale.ID }),
				SaleCodes: lo.Compact(lo.Map(failed, func(sale types.Sale, _ int) string { return sale.SaleCode })),
				Total:     sumCents(lo.Map(failed, func(sale types.Sale, _ int) float64 { return sale.SalePrice })...),
				Reason:    strings.Join(lo.Uniq(reasons), "; "),
			},
		)
	}
}

// settle completes one sale. Deleted or already settled sales are skipped.
// A sale that cannot be completed is marked failed when still pending.
func (w *PaymentWorker) settle(ctx context.Context, saleID int, receipt string) (types.Sale, settleOutcome, error) {
	var sale types.Sale
	var skipReason error
	err := w.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		sale, err = w.sales.Get(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.PaymentStatus != types.PaymentStatusPending {
			skipReason = fmt.Errorf("sale is %s", sale.PaymentStatus)
			return nil
		}

		ok, err := w.sales.Complete(ctx, saleID, receipt, simulatedPaymentNote, w.now())
		if err != nil {
			if store.IsConflictOn(err, completedPurchaseConstraint) {
				return errDuplicatePurchase
			}
			return err
		}
		if !ok {
			skipReason = errors.New("sale settled concurrently")
			return nil
		}

		if err := w.sellers.IncrementTotalSales(ctx, sale.SellerID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			w.logger.Warn("seller missing while completing sale",
				slog.Int("sale_id", saleID),
				slog.Int("user_id", sale.SellerID),
			)
		}
		return nil
	})

	switch {
	case errors.Is(err, store.ErrNotFound):
		return types.Sale{}, outcomeSkipped, errors.New("sale no longer exists")
	case err != nil:
		if _, failErr := w.sales.Fail(ctx, saleID, err.Error()); failErr != nil && !errors.Is(failErr, store.ErrNotFound) {
			w.logger.Error("mark sale failed", slog.Int("sale_id", saleID), slog.Any("error", failErr))
		}
		return sale, outcomeFailed, err
	case skipReason != nil:
		return sale, outcomeSkipped, skipReason
	}

	sale.PaymentStatus = types.PaymentStatusCompleted
	sale.DeliveryStatus = types.DeliveryStatusCompleted
	sale.ReceiptCode = receipt
	return sale, outcomeCompleted, nil
}

func describeCount(n int) string {
	if n == 1 {
		return "tu proyecto"
	}
	return fmt.Sprintf("tus %d proyectos", n)
}
