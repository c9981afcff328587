package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/phenrril/kitehouse/internal/domain"
)

type CartRepo struct{ db *gorm.DB }

func NewCartRepo(db *gorm.DB) *CartRepo { return &CartRepo{db: db} }

func (r *CartRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	var c domain.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("Items.Product").
		Preload("Items.Variant").
		First(&c, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetOrCreate relies on the unique user_id index: a concurrent insert loses
// silently and both callers read back the same row.
func (r *CartRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	c, err := r.FindByUser(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	now := time.Now()
	fresh := &domain.Cart{ID: uuid.New(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(fresh).Error; err != nil {
		return nil, err
	}
	return r.FindByUser(ctx, userID)
}

func (r *CartRepo) FindItem(ctx context.Context, cartID, productID uuid.UUID, variantID *uuid.UUID) (*domain.CartItem, error) {
	var it domain.CartItem
	q := r.db.WithContext(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID)
	if variantID != nil {
		q = q.Where("variant_id = ?", *variantID)
	} else {
		q = q.Where("variant_id IS NULL")
	}
	if err := q.First(&it).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCartItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *CartRepo) FindItemByID(ctx context.Context, cartID, itemID uuid.UUID) (*domain.CartItem, error) {
	var it domain.CartItem
	err := r.db.WithContext(ctx).
		Preload("Product").
		Preload("Variant").
		First(&it, "id = ? AND cart_id = ?", itemID, cartID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCartItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

func (r *CartRepo) SaveItem(ctx context.Context, it *domain.CartItem) error {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(it).Error
}

func (r *CartRepo) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&domain.CartItem{}).Error
}

func (r *CartRepo) Clear(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&domain.CartItem{}).Error
}

func (r *CartRepo) DeleteByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&domain.CartItem{})
	return res.RowsAffected, res.Error
}

func (r *CartRepo) DeleteByVariant(ctx context.Context, variantID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("variant_id = ?", variantID).Delete(&domain.CartItem{})
	return res.RowsAffected, res.Error
}
