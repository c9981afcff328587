package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/phenrril/kitehouse/internal/domain"
)

type OrderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) *OrderRepo { return &OrderRepo{db: db} }

func itemsInOrder(db *gorm.DB) *gorm.DB { return db.Order("position asc") }

// Create inserts the order together with its items.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
		o.Items[i].Position = i
	}
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *OrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.WithContext(ctx).Preload("Items", itemsInOrder).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int64, error) {
	list := []domain.Order{}
	q := r.db.WithContext(ctx).Model(&domain.Order{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	page := f.Page.Normalize()
	err := q.Order("created_at desc").
		Offset(page.Offset()).Limit(page.Limit).
		Preload("Items", itemsInOrder).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// UpdateStatus moves the order from one status to another. It answers
// ErrConflict when the order exists but is no longer in status from.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

func (r *OrderRepo) missingOrConflict(ctx context.Context, id uuid.UUID) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return fmt.Errorf("%w: order status changed concurrently", domain.ErrConflict)
}

func (r *OrderRepo) SetRemoteOrder(ctx context.Context, id uuid.UUID, remoteOrderID string) error {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).Where("id = ?", id).Update("remote_order_id", remoteOrderID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// MarkPaid records the payment only while the order is unpaid and not
// cancelled. It reports false when no row qualified.
func (r *OrderRepo) MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, st domain.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND payment_status = ? AND status <> ?", id, domain.PaymentStatusPending, domain.OrderStatusCancelled).
		Updates(map[string]any{
			"payment_status": domain.PaymentStatusPaid,
			"payment_id":     paymentID,
			"status":         st,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OrderRepo) CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.OrderItem{}).Where("product_id = ?", productID).Count(&n).Error
	return n, err
}
