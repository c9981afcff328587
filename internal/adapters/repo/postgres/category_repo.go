package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/phenrril/kitehouse/internal/domain"
)

type CategoryRepo struct{ db *gorm.DB }

func NewCategoryRepo(db *gorm.DB) *CategoryRepo { return &CategoryRepo{db: db} }

// List returns categories ordered by name, each with its product count.
func (r *CategoryRepo) List(ctx context.Context, f domain.CategoryFilter) ([]domain.Category, int64, error) {
	list := []domain.Category{}
	q := r.db.WithContext(ctx).Model(&domain.Category{})
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page := f.Page.Normalize()
	if err := q.Order("name asc").Offset(page.Offset()).Limit(page.Limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	if len(list) == 0 {
		return list, total, nil
	}

	ids := make([]uuid.UUID, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	var counts []struct {
		CategoryID uuid.UUID
		N          int64
	}
	err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Select("category_id, COUNT(*) AS n").
		Where("category_id IN ?", ids).
		Group("category_id").
		Scan(&counts).Error
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uuid.UUID]int64, len(counts))
	for _, c := range counts {
		byID[c.CategoryID] = c.N
	}
	for i := range list {
		list[i].Products = byID[list[i].ID]
	}
	return list, total, nil
}

func (r *CategoryRepo) FindByName(ctx context.Context, name string) (*domain.Category, error) {
	var c domain.Category
	if err := r.db.WithContext(ctx).First(&c, "LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CategoryRepo) Save(ctx context.Context, c *domain.Category) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Save(c).Error
}

// Delete detaches the category's products before removing it.
func (r *CategoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Product{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.Category{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrCategoryNotFound
		}
		return nil
	})
}
