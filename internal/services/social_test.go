package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/studex/apiserver/types"
)

func TestFavoriteAddRemove(t *testing.T) {
	db := newMemDB()
	svc := NewFavoriteService(fakeFavoriteRepo{fakeFavorites(db)}, fakeProjects{db})
	ctx := context.Background()
	project := db.addProject(types.Project{Price: 10, SellerID: 99})

	_, err := svc.Add(ctx, 1, project.ID)
	require.NoError(t, err)
	_, err = svc.Add(ctx, 1, project.ID)
	require.Equal(t, KindConflict, KindOf(err))

	ok, err := svc.IsFavorite(ctx, 1, project.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Add(ctx, 1, 12345)
	require.ErrorIs(t, err, ErrListingNotFound)

	require.NoError(t, svc.Remove(ctx, 1, project.ID))
	require.Equal(t, KindNotFound, KindOf(svc.Remove(ctx, 1, project.ID)))
}

func TestCartAddRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	svc := NewCartService(fakeCartRepo{fakeCart(f.db)}, f.projects, f.sales)
	seller := f.db.addUser(types.User{Email: "s@uni.edu.pe"})
	buyer := f.db.addUser(types.User{Email: "b@uni.edu.pe"})
	open := f.db.addProject(types.Project{Price: 10.1, SellerID: seller.ID})
	other := f.db.addProject(types.Project{Price: 5.2, SellerID: seller.ID})
	review := f.db.addProject(types.Project{Price: 10, SellerID: seller.ID, Status: types.ProjectStatusReview})
	own := f.db.addProject(types.Project{Price: 10, SellerID: buyer.ID})
	bought := f.db.addProject(types.Project{Price: 10, SellerID: seller.ID})

	sale, err := f.purchases.Purchase(ctx, buyer.ID, PurchaseItem{ProjectID: bought.ID, Amount: 10}, types.PaymentMethodYape, "")
	require.NoError(t, err)
	f.worker.Complete(ctx, PaymentJob{SaleIDs: []int{sale.ID}, BuyerID: buyer.ID})

	item, err := svc.Add(ctx, buyer.ID, open.ID)
	require.NoError(t, err)
	require.NotNil(t, item.Project)
	_, err = svc.Add(ctx, buyer.ID, other.ID)
	require.NoError(t, err)

	_, err = svc.Add(ctx, buyer.ID, open.ID)
	require.Equal(t, KindConflict, KindOf(err))
	_, err = svc.Add(ctx, buyer.ID, review.ID)
	require.ErrorIs(t, err, ErrListingUnavailable)
	_, err = svc.Add(ctx, buyer.ID, own.ID)
	require.Equal(t, KindValidation, KindOf(err))
	_, err = svc.Add(ctx, buyer.ID, bought.ID)
	require.ErrorIs(t, err, ErrAlreadyPurchased)

	items, total, err := svc.List(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.InDelta(t, 15.3, total, 1e-9)

	require.NoError(t, svc.Remove(ctx, buyer.ID, other.ID))
	require.Equal(t, KindNotFound, KindOf(svc.Remove(ctx, buyer.ID, other.ID)))

	removed, err := svc.Clear(ctx, buyer.ID)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
