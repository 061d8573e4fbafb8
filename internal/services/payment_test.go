package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/studex/apiserver/internal/mq"
	"github.com/studex/apiserver/types"
)

func TestCompleteSettlesSalesAndNotifiesBuyerOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seller := f.db.addUser(types.User{Email: "s@uni.edu.pe"})
	buyer := f.db.addUser(types.User{Email: "b@uni.edu.pe"})
	p1 := f.db.addProject(types.Project{Price: 12, SellerID: seller.ID})
	p2 := f.db.addProject(types.Project{Price: 8.5, SellerID: seller.ID})

	sales, err := f.purchases.PurchaseCart(ctx, buyer.ID, []PurchaseItem{
		{ProjectID: p1.ID, Amount: 12},
		{ProjectID: p2.ID, Amount: 8.5},
	}, types.PaymentMethodPlin)
	require.NoError(t, err)

	job := PaymentJob{SaleIDs: []int{sales[0].ID, sales[1].ID, sales[0].ID}, BuyerID: buyer.ID}
	f.worker.Complete(ctx, job)

	for _, sale := range f.db.salesOf(buyer.ID) {
		require.Equal(t, types.PaymentStatusCompleted, sale.PaymentStatus)
		require.Equal(t, types.DeliveryStatusCompleted, sale.DeliveryStatus)
		require.Regexp(t, `^REC-\d+-[0-9A-F]{8}$`, sale.ReceiptCode)
		require.NotNil(t, sale.PaymentDate)
		require.True(t, sale.PaymentDate.Equal(f.now))
	}
	u, err := f.users.GetByID(ctx, seller.ID)
	require.NoError(t, err)
	require.Equal(t, 2, u.TotalSales)

	notes := f.db.notificationsOf(buyer.ID)
	require.Len(t, notes, 1)
	require.Equal(t, types.NotificationPurchaseSuccess, notes[0].Type)
	result, ok := notes[0].Data.(types.PurchaseResultData)
	require.True(t, ok)
	require.ElementsMatch(t, []int{sales[0].ID, sales[1].ID}, result.SaleIDs)
	require.InDelta(t, 20.5, result.Total, 1e-9)
	require.NotEmpty(t, result.ReceiptCode)

	// A redelivered job finds nothing pending and changes nothing.
	f.worker.Complete(ctx, job)
	require.Len(t, f.db.notificationsOf(buyer.ID), 1)
	u, _ = f.users.GetByID(ctx, seller.ID)
	require.Equal(t, 2, u.TotalSales)
}

func TestCompleteSkipsDeletedSale(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seller := f.db.addUser(types.User{Email: "s@uni.edu.pe"})
	buyer := f.db.addUser(types.User{Email: "b@uni.edu.pe"})
	project := f.db.addProject(types.Project{Price: 30, SellerID: seller.ID})

	sale, err := f.purchases.Purchase(ctx, buyer.ID, PurchaseItem{ProjectID: project.ID, Amount: 30}, types.PaymentMethodYape, "")
	require.NoError(t, err)
	f.sales.delete(sale.ID)

	f.worker.Complete(ctx, PaymentJob{SaleIDs: []int{sale.ID}, BuyerID: buyer.ID})
	require.Empty(t, f.db.notificationsOf(buyer.ID))
	u, _ := f.users.GetByID(ctx, seller.ID)
	require.Zero(t, u.TotalSales)
}

func TestCompleteFailsDuplicatePurchase(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seller := f.db.addUser(types.User{Email: "s@uni.edu.pe"})
	buyer := f.db.addUser(types.User{Email: "b@uni.edu.pe"})
	project := f.db.addProject(types.Project{Price: 30, SellerID: seller.ID})

	// Both sales are created before either settles.
	first, err := f.purchases.Purchase(ctx, buyer.ID, PurchaseItem{ProjectID: project.ID, Amount: 30}, types.PaymentMethodYape, "")
	require.NoError(t, err)
	second, err := f.purchases.Purchase(ctx, buyer.ID, PurchaseItem{ProjectID: project.ID, Amount: 30}, types.PaymentMethodYape, "")
	require.NoError(t, err)

	f.worker.Complete(ctx, PaymentJob{SaleIDs: []int{first.ID}, BuyerID: buyer.ID})
	f.worker.Complete(ctx, PaymentJob{SaleIDs: []int{second.ID}, BuyerID: buyer.ID})

	got, err := f.sales.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusFailed, got.PaymentStatus)
	require.Contains(t, got.AdminNote, "already owns")

	notes := f.db.notificationsOf(buyer.ID)
	require.Len(t, notes, 2)
	require.Equal(t, types.NotificationPurchaseSuccess, notes[0].Type)
	require.Equal(t, types.NotificationPurchaseFailed, notes[1].Type)
	result := notes[1].Data.(types.PurchaseResultData)
	require.Equal(t, []int{second.ID}, result.SaleIDs)
	require.Contains(t, result.Reason, "already owns")

	u, _ := f.users.GetByID(ctx, seller.ID)
	require.Equal(t, 1, u.TotalSales)
}

func TestHandleDropsMalformedJob(t *testing.T) {
	f := newFixture()
	err := f.worker.Handle(context.Background(), mq.Message{ID: "1", Data: []byte("{not json")})
	require.NoError(t, err)
}

func TestHandleReturnsWhenCancelledBeforeDue(t *testing.T) {
	f := newFixture()
	data, err := json.Marshal(PaymentJob{SaleIDs: []int{1}, BuyerID: 2, NotBefore: f.now.Add(time.Hour)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = f.worker.Handle(ctx, mq.Message{ID: "1", Data: data})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorkerCompletesPurchaseThroughMemoryBroker(t *testing.T) {
	f := newFixture()
	broker := mq.New(mq.NewMemoryBackend(0))
	defer broker.Close()
	f.purchases.jobs = broker
	f.purchases.cfg.CompletionDelay = 0

	seller := f.db.addUser(types.User{Email: "s@uni.edu.pe"})
	buyer := f.db.addUser(types.User{Email: "b@uni.edu.pe"})
	project := f.db.addProject(types.Project{Price: 15, SellerID: seller.ID})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx, broker) }()

	_, err := f.purchases.Purchase(context.Background(), buyer.ID, PurchaseItem{ProjectID: project.ID, Amount: 15}, types.PaymentMethodYape, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		owned, err := f.purchases.HasPurchased(context.Background(), buyer.ID, project.ID)
		return err == nil && owned
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
