package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/phenrril/kitehouse/internal/domain"
)

type ProductRepo struct{ db *gorm.DB }

func NewProductRepo(db *gorm.DB) *ProductRepo { return &ProductRepo{db: db} }

// Variants created in one batch share created_at, so sku breaks the tie.
func variantsInOrder(db *gorm.DB) *gorm.DB { return db.Order("created_at asc").Order("sku asc") }

func (r *ProductRepo) Save(ctx context.Context, p *domain.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	for i := range p.Variants {
		if p.Variants[i].ID == uuid.Nil {
			p.Variants[i].ID = uuid.New()
		}
		p.Variants[i].ProductID = p.ID
	}
	db := r.db.WithContext(ctx)
	if p.CreatedAt.IsZero() {
		return db.Create(p).Error
	}
	return db.Session(&gorm.Session{FullSaveAssociations: true}).Save(p).Error
}

func (r *ProductRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", variantsInOrder).
		First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error) {
	list := []domain.Product{}
	if len(ids) == 0 {
		return list, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ProductRepo) FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*domain.Variant, error) {
	var v domain.Variant
	if err := r.db.WithContext(ctx).First(&v, "id = ? AND product_id = ?", variantID, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrVariantNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *ProductRepo) List(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int64, error) {
	list := []domain.Product{}
	q := r.db.WithContext(ctx).Model(&domain.Product{})
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if query := strings.TrimSpace(f.Query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page := f.Page.Normalize()
	err := q.Order("created_at desc").
		Offset(page.Offset()).Limit(page.Limit).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			if f.ActiveOnly {
				db = db.Where("active = ?", true)
			}
			return variantsInOrder(db)
		}).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *ProductRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res := r.db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// Delete removes the product and its variants. Order items keep their snapshot.
func (r *ProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&domain.Variant{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Product{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrProductNotFound
		}
		return nil
	})
}

func (r *ProductRepo) ReplaceVariants(ctx context.Context, productID uuid.UUID, variants []domain.Variant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).Delete(&domain.Variant{}).Error; err != nil {
			return err
		}
		if len(variants) == 0 {
			return nil
		}
		for i := range variants {
			if variants[i].ID == uuid.Nil {
				variants[i].ID = uuid.New()
			}
			variants[i].ProductID = productID
		}
		return tx.Create(&variants).Error
	})
}

// --- Variants ---

func (r *ProductRepo) SaveVariant(ctx context.Context, v *domain.Variant) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Save(v).Error
}

func (r *ProductRepo) DeleteVariant(ctx context.Context, variantID uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", variantID).Delete(&domain.Variant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

// --- Stock ---

// DecrementStock subtracts qty only while the row still holds at least qty units.
// It reports false when no row qualified.
func (r *ProductRepo) DecrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) (bool, error) {
	q := r.db.WithContext(ctx)
	var res *gorm.DB
	if variantID != nil {
		res = q.Model(&domain.Variant{}).
			Where("id = ? AND product_id = ? AND stock >= ?", *variantID, productID, qty).
			UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	} else {
		res = q.Model(&domain.Product{}).
			Where("id = ? AND stock >= ?", productID, qty).
			UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ProductRepo) IncrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	q := r.db.WithContext(ctx)
	if variantID != nil {
		return q.Model(&domain.Variant{}).Where("id = ?", *variantID).
			UpdateColumn("stock", gorm.Expr("stock + ?", qty)).Error
	}
	return q.Model(&domain.Product{}).Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty)).Error
}

func (r *ProductRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Product{}).Count(&n).Error
	return n, err
}
