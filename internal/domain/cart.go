package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartMode string

const (
	CartModeAdd CartMode = "add"
	CartModeSet CartMode = "set"
)

// ParseCartMode accepts "", "add" and "set"; an empty mode means add.
func ParseCartMode(s string) (CartMode, error) {
	switch CartMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CartModeAdd:
		return CartModeAdd, nil
	case CartModeSet:
		return CartModeSet, nil
	}
	return "", Validationf("mode must be add or set")
}

// Cart has at most one row per user.
type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"userId"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CartItem is keyed by (cart, product, variant).
type CartItem struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CartID    uuid.UUID  `gorm:"type:uuid;index" json:"cartId"`
	ProductID uuid.UUID  `gorm:"type:uuid;index" json:"productId"`
	VariantID *uuid.UUID `gorm:"type:uuid;index" json:"variantId"`
	Quantity  int        `gorm:"not null" json:"quantity"`
	Product   *Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Variant   *Variant   `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type CartLine struct {
	ItemID      uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"productId"`
	VariantID   *uuid.UUID      `json:"variantId,omitempty"`
	Name        string          `json:"name"`
	VariantName string          `json:"variantName,omitempty"`
	Image       string          `json:"image,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Stock       int             `json:"stock"`
}

type CartView struct {
	CartID uuid.UUID       `json:"id"`
	UserID uuid.UUID       `json:"userId"`
	Lines  []CartLine      `json:"items"`
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// NewCartView prices every item whose product is still loadable; orphaned rows are skipped.
func NewCartView(c *Cart) *CartView {
	view := &CartView{CartID: c.ID, UserID: c.UserID, Lines: []CartLine{}, Total: decimal.Zero}
	for _, it := range c.Items {
		if it.Product == nil {
			continue
		}
		price := EffectivePrice(it.Product, it.Variant)
		line := CartLine{
			ItemID:    it.ID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Product.Name,
			Image:     EffectiveImage(it.Product, it.Variant),
			Quantity:  it.Quantity,
			UnitPrice: price,
			Subtotal:  price.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2),
			Stock:     EffectiveStock(it.Product, it.Variant),
		}
		if it.Variant != nil {
			line.VariantName = it.Variant.DisplayName()
		}
		view.Lines = append(view.Lines, line)
		view.Count += it.Quantity
		view.Total = view.Total.Add(line.Subtotal)
	}
	view.Total = view.Total.Round(2)
	return view
}

type CartRepo interface {
	FindByUser(ctx context.Context, userID uuid.UUID) (*Cart, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Cart, error)
	FindItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (*CartItem, error)
	FindItemByID(ctx context.Context, cartID, itemID uuid.UUID) (*CartItem, error)
	SaveItem(ctx context.Context, it *CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
	DeleteByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
	DeleteByVariant(ctx context.Context, variantID uuid.UUID) (int64, error)
}

// CartCache stores rendered cart views keyed by user.
type CartCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartView, error)
	Set(ctx context.Context, userID uuid.UUID, v *CartView) error
	Delete(ctx context.Context, userID uuid.UUID) error
	// Purge drops every cached view; used when catalog changes touch many carts.
	Purge(ctx context.Context) error
}
