package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/phenrril/kitehouse/internal/domain"
)

const maxSearchLen = 100

// ProductUC serves the public catalog and the admin catalog screens.
type ProductUC struct {
	Products   domain.ProductRepo
	Categories domain.CategoryRepo
	Carts      domain.CartRepo
	Orders     domain.OrderRepo
	// Invalidate drops cached cart views after a catalog change.
	Invalidate func(ctx context.Context)
}

func (uc *ProductUC) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int64, error) {
	f.Query = strings.TrimSpace(f.Query)
	if len(f.Query) > maxSearchLen {
		return nil, 0, domain.Validationf("search query must be at most %d characters", maxSearchLen)
	}
	f.Page = f.Page.Normalize()
	return uc.Products.List(ctx, f)
}

// Get returns any product, active or not.
func (uc *ProductUC) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	if id == uuid.Nil {
		return nil, domain.ErrProductNotFound
	}
	return uc.Products.FindByID(ctx, id)
}

// GetActive hides inactive products and variants from shoppers.
func (uc *ProductUC) GetActive(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, err := uc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, domain.ErrProductNotFound
	}
	active := p.Variants[:0]
	for _, v := range p.Variants {
		if v.Active {
			active = append(active, v)
		}
	}
	p.Variants = active
	return p, nil
}

func (uc *ProductUC) MatchVariant(ctx context.Context, productID uuid.UUID, selected domain.Attributes) (*domain.Variant, error) {
	p, err := uc.GetActive(ctx, productID)
	if err != nil {
		return nil, err
	}
	v := p.MatchVariant(selected)
	if v == nil {
		return nil, domain.ErrVariantNotFound
	}
	return v, nil
}

// ProductInput carries the editable fields of a product and, optionally, its full variant set.
type ProductInput struct {
	Name        string           `json:"name" validate:"required,max=180"`
	Description string           `json:"description" validate:"max=5000"`
	Price       decimal.Decimal  `json:"price" validate:"gte=0"`
	Stock       int              `json:"stock" validate:"gte=0"`
	ImageURL    string           `json:"imageUrl" validate:"max=255"`
	CategoryID  *uuid.UUID       `json:"categoryId"`
	Variants    []domain.Variant `json:"variants" validate:"dive"`
}

func (in *ProductInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	for i := range in.Variants {
		trimVariant(&in.Variants[i])
	}
	if err := domain.Validate(in); err != nil {
		return err
	}
	for _, v := range in.Variants {
		if v.Name == "" && len(v.Attributes) == 0 {
			return domain.Validationf("variant needs a name or attributes")
		}
	}
	return nil
}

func trimVariant(v *domain.Variant) {
	v.SKU = strings.TrimSpace(v.SKU)
	v.Name = strings.TrimSpace(v.Name)
	v.ImageURL = strings.TrimSpace(v.ImageURL)
}

func validateVariant(v *domain.Variant) error {
	trimVariant(v)
	if err := domain.Validate(v); err != nil {
		return fmt.Errorf("variant: %w", err)
	}
	if v.Name == "" && len(v.Attributes) == 0 {
		return domain.Validationf("variant needs a name or attributes")
	}
	return nil
}

func (uc *ProductUC) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p := &domain.Product{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		ImageURL:    in.ImageURL,
		CategoryID:  in.CategoryID,
		Active:      true,
		Variants:    in.Variants,
	}
	for i := range p.Variants {
		p.Variants[i].ID = uuid.Nil
		p.Variants[i].Active = true
		p.Variants[i].Price = p.Variants[i].Price.Round(2)
	}
	if err := uc.Products.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update overwrites the product fields. A non-nil variant list replaces the whole set.
// Cached cart views are dropped since they carry the old price, stock and name.
func (uc *ProductUC) Update(ctx context.Context, id uuid.UUID, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := uc.Products.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = in.Name
	p.Description = strings.TrimSpace(in.Description)
	p.Price = in.Price.Round(2)
	p.Stock = in.Stock
	p.ImageURL = in.ImageURL
	p.CategoryID = in.CategoryID
	variants := p.Variants
	p.Variants = nil
	if err := uc.Products.Save(ctx, p); err != nil {
		return nil, err
	}
	if in.Variants != nil {
		for i := range in.Variants {
			in.Variants[i].Active = true
			in.Variants[i].Price = in.Variants[i].Price.Round(2)
		}
		if err := uc.Products.ReplaceVariants(ctx, id, in.Variants); err != nil {
			return nil, err
		}
		if _, err := uc.Carts.DeleteByProduct(ctx, id); err != nil {
			log.Warn().Err(err).Str("product_id", id.String()).Msg("cart cleanup after variant replace")
		}
		variants = in.Variants
	}
	uc.invalidate(ctx)
	p.Variants = variants
	return p, nil
}

// SetActive toggles the soft-delete flag. Deactivated products leave every cart.
func (uc *ProductUC) SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Product, error) {
	if err := uc.Products.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	if !active {
		n, err := uc.Carts.DeleteByProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			log.Info().Str("product_id", id.String()).Int64("cart_items", n).Msg("product deactivated, removed from carts")
			uc.invalidate(ctx)
		}
	}
	return uc.Products.FindByID(ctx, id)
}

// Delete refuses products referenced by orders unless force is set. Cart rows
// are always removed first; order items keep their snapshot.
func (uc *ProductUC) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	if _, err := uc.Products.FindByID(ctx, id); err != nil {
		return err
	}
	refs, err := uc.Orders.CountByProduct(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 && !force {
		return fmt.Errorf("%w: product is referenced by %d order items, deactivate it instead", domain.ErrConflict, refs)
	}
	if _, err := uc.Carts.DeleteByProduct(ctx, id); err != nil {
		return err
	}
	uc.invalidate(ctx)
	if err := uc.Products.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("product_id", id.String()).Int64("order_refs", refs).Msg("product deleted")
	return nil
}

// --- Variants ---

func (uc *ProductUC) AddVariant(ctx context.Context, productID uuid.UUID, v domain.Variant) (*domain.Variant, error) {
	if err := validateVariant(&v); err != nil {
		return nil, err
	}
	if _, err := uc.Products.FindByID(ctx, productID); err != nil {
		return nil, err
	}
	v.ID = uuid.New()
	v.ProductID = productID
	v.Active = true
	v.Price = v.Price.Round(2)
	if err := uc.Products.SaveVariant(ctx, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (uc *ProductUC) UpdateVariant(ctx context.Context, productID, variantID uuid.UUID, in domain.Variant) (*domain.Variant, error) {
	if err := validateVariant(&in); err != nil {
		return nil, err
	}
	v, err := uc.Products.FindVariant(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}
	v.SKU = in.SKU
	v.Name = in.Name
	v.Attributes = in.Attributes
	v.Price = in.Price.Round(2)
	v.Stock = in.Stock
	v.ImageURL = strings.TrimSpace(in.ImageURL)
	v.Active = in.Active
	if err := uc.Products.SaveVariant(ctx, v); err != nil {
		return nil, err
	}
	if !v.Active {
		if _, err := uc.Carts.DeleteByVariant(ctx, v.ID); err != nil {
			return nil, err
		}
	}
	uc.invalidate(ctx)
	return v, nil
}

func (uc *ProductUC) DeleteVariant(ctx context.Context, productID, variantID uuid.UUID) error {
	if _, err := uc.Products.FindVariant(ctx, productID, variantID); err != nil {
		return err
	}
	if _, err := uc.Carts.DeleteByVariant(ctx, variantID); err != nil {
		return err
	}
	uc.invalidate(ctx)
	return uc.Products.DeleteVariant(ctx, variantID)
}

// --- Categories ---

func (uc *ProductUC) ListCategories(ctx context.Context, f domain.CategoryFilter) ([]domain.Category, int64, error) {
	f.Query = strings.TrimSpace(f.Query)
	if len(f.Query) > maxSearchLen {
		return nil, 0, domain.Validationf("search query must be at most %d characters", maxSearchLen)
	}
	f.Page = f.Page.Normalize()
	return uc.Categories.List(ctx, f)
}

func (uc *ProductUC) CreateCategory(ctx context.Context, name, description string) (*domain.Category, error) {
	c := &domain.Category{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if err := domain.Validate(c); err != nil {
		return nil, fmt.Errorf("category: %w", err)
	}
	_, err := uc.Categories.FindByName(ctx, c.Name)
	if err == nil {
		return nil, fmt.Errorf("%w: category with this name already exists", domain.ErrConflict)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err := uc.Categories.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (uc *ProductUC) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	return uc.Categories.Delete(ctx, id)
}

func (uc *ProductUC) invalidate(ctx context.Context) {
	if uc.Invalidate != nil {
		uc.Invalidate(ctx)
	}
}
