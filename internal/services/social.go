package services

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
)

// FavoriteRepository defines persistence operations for favorites.
type FavoriteRepository interface {
	Add(ctx context.Context, userID, projectID int) (types.Favorite, error)
	Remove(ctx context.Context, userID, projectID int) error
	Exists(ctx context.Context, userID, projectID int) (bool, error)
	List(ctx context.Context, userID int) ([]types.Favorite, error)
}

// CartRepository defines persistence operations for cart items.
type CartRepository interface {
	Add(ctx context.Context, userID, projectID int) (types.CartItem, error)
	Remove(ctx context.Context, userID, projectID int) error
	Exists(ctx context.Context, userID, projectID int) (bool, error)
	List(ctx context.Context, userID int) ([]types.CartItem, error)
	Clear(ctx context.Context, userID int) (int, error)
}

// FavoriteService manages a user's favorite listings.
type FavoriteService struct {
	favorites FavoriteRepository
	projects  ProjectReader
}

func NewFavoriteService(favorites FavoriteRepository, projects ProjectReader) *FavoriteService {
	return &FavoriteService{favorites: favorites, projects: projects}
}

// Add rejects a listing that is already a favorite with a conflict.
func (s *FavoriteService) Add(ctx context.Context, userID, projectID int) (types.Favorite, error) {
	if _, err := loadListing(ctx, s.projects, projectID); err != nil {
		return types.Favorite{}, err
	}

	exists, err := s.favorites.Exists(ctx, userID, projectID)
	if err != nil {
		return types.Favorite{}, err
	}
	if exists {
		return types.Favorite{}, conflict("project is already in favorites", nil)
	}

	favorite, err := s.favorites.Add(ctx, userID, projectID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Favorite{}, conflict("project is already in favorites", err)
		}
		return types.Favorite{}, err
	}
	return favorite, nil
}

func (s *FavoriteService) Remove(ctx context.Context, userID, projectID int) error {
	if err := s.favorites.Remove(ctx, userID, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("project is not in favorites")
		}
		return err
	}
	return nil
}

func (s *FavoriteService) IsFavorite(ctx context.Context, userID, projectID int) (bool, error) {
	return s.favorites.Exists(ctx, userID, projectID)
}

func (s *FavoriteService) List(ctx context.Context, userID int) ([]types.Favorite, error) {
	return s.favorites.List(ctx, userID)
}

// CartService manages a user's cart.
type CartService struct {
	cart      CartRepository
	projects  ProjectReader
	purchases PurchaseChecker
}

func NewCartService(cart CartRepository, projects ProjectReader, purchases PurchaseChecker) *CartService {
	return &CartService{cart: cart, projects: projects, purchases: purchases}
}

// Add puts a purchasable listing in the cart. Own listings, listings already
// bought and listings already in the cart are rejected.
func (s *CartService) Add(ctx context.Context, userID, projectID int) (types.CartItem, error) {
	project, err := loadListing(ctx, s.projects, projectID)
	if err != nil {
		return types.CartItem{}, err
	}
	if !project.Status.Purchasable() {
		return types.CartItem{}, ErrListingUnavailable
	}
	if project.SellerID == userID {
		return types.CartItem{}, validationError("you cannot add your own project to the cart")
	}

	owned, err := s.purchases.HasCompleted(ctx, userID, projectID)
	if err != nil {
		return types.CartItem{}, err
	}
	if owned {
		return types.CartItem{}, ErrAlreadyPurchased
	}

	exists, err := s.cart.Exists(ctx, userID, projectID)
	if err != nil {
		return types.CartItem{}, err
	}
	if exists {
		return types.CartItem{}, conflict("project is already in the cart", nil)
	}

	item, err := s.cart.Add(ctx, userID, projectID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.CartItem{}, conflict("project is already in the cart", err)
		}
		return types.CartItem{}, err
	}
	item.Project = &project
	return item, nil
}

func (s *CartService) Remove(ctx context.Context, userID, projectID int) error {
	if err := s.cart.Remove(ctx, userID, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("project is not in the cart")
		}
		return err
	}
	return nil
}

// List returns the cart items and the sum of their current prices.
func (s *CartService) List(ctx context.Context, userID int) ([]types.CartItem, float64, error) {
	items, err := s.cart.List(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	total := sumCents(lo.FilterMap(items, func(item types.CartItem, _ int) (float64, bool) {
		if item.Project == nil {
			return 0, false
		}
		return item.Project.Price, true
	})...)
	return items, total, nil
}

func (s *CartService) Clear(ctx context.Context, userID int) (int, error) {
	return s.cart.Clear(ctx, userID)
}

func loadListing(ctx context.Context, projects ProjectReader, id int) (types.Project, error) {
	project, err := projects.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Project{}, ErrListingNotFound
		}
		return types.Project{}, err
	}
	return project, nil
}
