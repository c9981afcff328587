package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/phenrril/kitehouse/internal/domain"
)

const DefaultMaxCartQuantity = 100

// CartUpsert is one add-to-cart request.
type CartUpsert struct {
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	VariantID *uuid.UUID      `json:"variantId,omitempty"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	Mode      domain.CartMode `json:"mode,omitempty"`
}

// CartUC owns the shopper cart. Reads go through the cache; every write
// invalidates the user's cached view.
type CartUC struct {
	Carts       domain.CartRepo
	Products    domain.ProductRepo
	Cache       domain.CartCache
	MaxQuantity int

	group singleflight.Group
}

func (uc *CartUC) maxQuantity() int {
	if uc.MaxQuantity > 0 {
		return uc.MaxQuantity
	}
	return DefaultMaxCartQuantity
}

func (uc *CartUC) checkQuantity(q int) error {
	if q < 1 || q > uc.maxQuantity() {
		return domain.Validationf("quantity must be between 1 and %d", uc.maxQuantity())
	}
	return nil
}

// View returns the user's cart, creating an empty one on first access.
func (uc *CartUC) View(ctx context.Context, userID uuid.UUID) (*domain.CartView, error) {
	if uc.Cache != nil {
		v, err := uc.Cache.Get(ctx, userID)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("cart cache read")
		}
	}

	res, err, _ := uc.group.Do(userID.String(), func() (any, error) {
		c, err := uc.Carts.GetOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		view := domain.NewCartView(c)
		if uc.Cache != nil {
			if err := uc.Cache.Set(ctx, userID, view); err != nil {
				log.Warn().Err(err).Str("user_id", userID.String()).Msg("cart cache write")
			}
		}
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.CartView), nil
}

// Upsert adds to or overwrites the line keyed by (product, variant). Stock is
// not checked here; checkout is authoritative.
func (uc *CartUC) Upsert(ctx context.Context, userID uuid.UUID, in CartUpsert) (*domain.CartView, error) {
	if err := domain.Validate(in); err != nil {
		return nil, err
	}
	if err := uc.checkQuantity(in.Quantity); err != nil {
		return nil, err
	}
	mode, err := domain.ParseCartMode(string(in.Mode))
	if err != nil {
		return nil, err
	}
	p, err := uc.Products.FindByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, domain.ErrProductNotFound
	}
	if in.VariantID != nil {
		v, err := uc.Products.FindVariant(ctx, p.ID, *in.VariantID)
		if err != nil {
			return nil, err
		}
		if !v.Active {
			return nil, domain.ErrVariantNotFound
		}
	}

	c, err := uc.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	it, err := uc.Carts.FindItem(ctx, c.ID, in.ProductID, in.VariantID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		it = &domain.CartItem{CartID: c.ID, ProductID: in.ProductID, VariantID: in.VariantID, Quantity: in.Quantity}
	case err != nil:
		return nil, err
	case mode == domain.CartModeSet:
		it.Quantity = in.Quantity
	default:
		it.Quantity += in.Quantity
	}
	if err := uc.Carts.SaveItem(ctx, it); err != nil {
		return nil, err
	}
	uc.invalidate(ctx, userID)
	return uc.View(ctx, userID)
}

// UpdateQuantity sets the quantity of an owned line, refusing more than the effective stock.
func (uc *CartUC) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartView, error) {
	if err := uc.checkQuantity(quantity); err != nil {
		return nil, err
	}
	c, err := uc.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	it, err := uc.Carts.FindItemByID(ctx, c.ID, itemID)
	if err != nil {
		return nil, err
	}
	if it.Product == nil {
		return nil, domain.ErrProductNotFound
	}
	if available := domain.EffectiveStock(it.Product, it.Variant); quantity > available {
		se := &domain.StockError{ProductName: it.Product.Name, Requested: quantity, Available: available}
		if it.Variant != nil {
			se.VariantName = it.Variant.DisplayName()
		}
		return nil, se
	}
	it.Quantity = quantity
	if err := uc.Carts.SaveItem(ctx, it); err != nil {
		return nil, err
	}
	uc.invalidate(ctx, userID)
	return uc.View(ctx, userID)
}

// RemoveItem is a no-op when the item is not in the user's cart.
func (uc *CartUC) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.CartView, error) {
	c, err := uc.Carts.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := uc.Carts.DeleteItem(ctx, c.ID, itemID); err != nil {
		return nil, err
	}
	uc.invalidate(ctx, userID)
	return uc.View(ctx, userID)
}

func (uc *CartUC) Clear(ctx context.Context, userID uuid.UUID) error {
	c, err := uc.Carts.FindByUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := uc.Carts.Clear(ctx, c.ID); err != nil {
		return err
	}
	uc.invalidate(ctx, userID)
	return nil
}

// PurgeCache drops every cached cart view.
func (uc *CartUC) PurgeCache(ctx context.Context) {
	if uc.Cache == nil {
		return
	}
	if err := uc.Cache.Purge(ctx); err != nil {
		log.Warn().Err(err).Msg("cart cache purge")
	}
}

// invalidate runs on its own short deadline so a cancelled request still drops the entry.
func (uc *CartUC) invalidate(_ context.Context, userID uuid.UUID) {
	if uc.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := uc.Cache.Delete(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("cart cache invalidate")
	}
}
