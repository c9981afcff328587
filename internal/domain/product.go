package domain

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Category struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex" json:"name" validate:"required,max=100"`
	Description string    `gorm:"size:500" json:"description" validate:"max=500"`
	Products    int64     `gorm:"-" json:"productCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string          `gorm:"size:180;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Stock       int             `gorm:"not null" json:"stock"`
	ImageURL    string          `gorm:"size:255" json:"imageUrl"`
	CategoryID  *uuid.UUID      `gorm:"type:uuid;index" json:"categoryId"`
	Active      bool            `gorm:"not null;index" json:"isActive"`
	Variants    []Variant       `json:"variants"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Variant struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProductID  uuid.UUID       `gorm:"type:uuid;index" json:"productId"`
	SKU        string          `gorm:"size:100;index" json:"sku" validate:"max=100"`
	Name       string          `gorm:"size:140" json:"name" validate:"max=140"`
	Attributes Attributes      `gorm:"type:jsonb;serializer:json" json:"attributes"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price" validate:"gte=0"`
	Stock      int             `gorm:"not null" json:"stock" validate:"gte=0"`
	ImageURL   string          `gorm:"size:255" json:"imageUrl" validate:"max=255"`
	Active     bool            `gorm:"not null" json:"isActive"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Attributes is the open attribute bag of a variant (size, color, material...).
type Attributes map[string]string

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches reports whether every selected attribute is present with the exact same value.
func (a Attributes) Matches(selected Attributes) bool {
	for k, v := range selected {
		got, ok := a[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

func (a Attributes) String() string {
	parts := make([]string, 0, len(a))
	for _, k := range a.Keys() {
		parts = append(parts, k+": "+a[k])
	}
	return strings.Join(parts, ", ")
}

// DisplayName falls back to the attribute summary when the variant has no name.
func (v *Variant) DisplayName() string {
	if strings.TrimSpace(v.Name) != "" {
		return v.Name
	}
	return v.Attributes.String()
}

// EffectivePrice is the variant price when a variant is selected, else the product price.
func EffectivePrice(p *Product, v *Variant) decimal.Decimal {
	if v != nil {
		return v.Price
	}
	return p.Price
}

// EffectiveStock is the variant stock when a variant is selected, else the product stock.
func EffectiveStock(p *Product, v *Variant) int {
	if v != nil {
		return v.Stock
	}
	return p.Stock
}

// EffectiveImage prefers the variant image and falls back to the product's.
func EffectiveImage(p *Product, v *Variant) string {
	if v != nil && v.ImageURL != "" {
		return v.ImageURL
	}
	return p.ImageURL
}

// MatchVariant returns the first active variant whose attributes match selected.
func (p *Product) MatchVariant(selected Attributes) *Variant {
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Active && v.Attributes.Matches(selected) {
			return v
		}
	}
	return nil
}

type ProductFilter struct {
	Query      string
	CategoryID *uuid.UUID
	ActiveOnly bool
	Page       Page
}

type CategoryFilter struct {
	Query string
	Page  Page
}

type ProductRepo interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*Variant, error)
	List(ctx context.Context, f ProductFilter) ([]Product, int64, error)
	Save(ctx context.Context, p *Product) error
	ReplaceVariants(ctx context.Context, productID uuid.UUID, variants []Variant) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	SaveVariant(ctx context.Context, v *Variant) error
	DeleteVariant(ctx context.Context, id uuid.UUID) error
	DecrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error
	Count(ctx context.Context) (int64, error)
}

type CategoryRepo interface {
	List(ctx context.Context, f CategoryFilter) ([]Category, int64, error)
	FindByName(ctx context.Context, name string) (*Category, error)
	Save(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id uuid.UUID) error
}
