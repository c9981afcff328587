package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phenrril/kitehouse/internal/domain"
)

const unavailableProductName = "Product No Longer Available"

// OrderUC renders orders for shoppers and admins and applies admin status changes.
type OrderUC struct {
	Orders   domain.OrderRepo
	Products domain.ProductRepo
	Tx       domain.UnitOfWork
}

// Get returns the order when it belongs to userID.
func (uc *OrderUC) Get(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	o, err := uc.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if err := uc.annotate(ctx, nil, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetAny is the admin view of a single order.
func (uc *OrderUC) GetAny(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	o, err := uc.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := uc.annotate(ctx, nil, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (uc *OrderUC) ListMine(ctx context.Context, userID uuid.UUID, page domain.Page) ([]domain.Order, int64, error) {
	return uc.list(ctx, domain.OrderFilter{UserID: &userID, Page: page})
}

func (uc *OrderUC) List(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int64, error) {
	return uc.list(ctx, f)
}

func (uc *OrderUC) list(ctx context.Context, f domain.OrderFilter) ([]domain.Order, int64, error) {
	f.Page = f.Page.Normalize()
	list, total, err := uc.Orders.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if err := uc.annotate(ctx, list, nil); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// UpdateStatus applies an admin status change. Cancelling gives the stock back
// to the products and variants that still exist.
func (uc *OrderUC) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*domain.Order, error) {
	st, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	err = uc.Tx.Do(ctx, func(s domain.Stores) error {
		o, err := s.Orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == st {
			return nil
		}
		if o.Status == domain.OrderStatusCancelled {
			return domain.Validationf("cancelled orders cannot change status")
		}
		if st == domain.OrderStatusCancelled {
			if err := restock(ctx, s.Products, o.Items); err != nil {
				return err
			}
		}
		return s.Orders.UpdateStatus(ctx, o.ID, o.Status, st)
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("order_id", orderID.String()).Str("status", string(st)).Msg("order status updated")
	return uc.GetAny(ctx, orderID)
}

// annotate flags items whose product row is gone and fills in a display name
// when the snapshot is empty. Products are loaded in one query, never joined.
func (uc *OrderUC) annotate(ctx context.Context, list []domain.Order, single *domain.Order) error {
	orders := make([]*domain.Order, 0, len(list)+1)
	for i := range list {
		orders = append(orders, &list[i])
	}
	if single != nil {
		orders = append(orders, single)
	}

	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, o := range orders {
		for _, it := range o.Items {
			if it.ProductID != nil && !seen[*it.ProductID] {
				seen[*it.ProductID] = true
				ids = append(ids, *it.ProductID)
			}
		}
	}
	products, err := uc.Products.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	exists := make(map[uuid.UUID]bool, len(products))
	for _, p := range products {
		exists[p.ID] = true
	}
	for _, o := range orders {
		for i := range o.Items {
			it := &o.Items[i]
			it.ProductAvailable = it.ProductID != nil && exists[*it.ProductID]
			if it.ProductName == "" && !it.ProductAvailable {
				it.ProductName = unavailableProductName
			}
		}
	}
	return nil
}
