package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/phenrril/kitehouse/internal/domain"
)

const DefaultCurrency = "INR"

// CheckoutResult is the persisted order plus the gateway handle the client pays against.
type CheckoutResult struct {
	Order   *domain.Order        `json:"order"`
	Payment *domain.GatewayOrder `json:"payment"`
}

// CheckoutUC turns requested lines into a pending order and a gateway order.
type CheckoutUC struct {
	Tx       domain.UnitOfWork
	Orders   domain.OrderRepo
	Carts    domain.CartRepo
	Gateway  domain.PaymentGateway
	Currency string
}

func (uc *CheckoutUC) currency() string {
	if uc.Currency != "" {
		return strings.ToUpper(uc.Currency)
	}
	return DefaultCurrency
}

// CheckoutCart orders the current content of the user's cart. The cart itself
// is cleared only once the payment is confirmed.
func (uc *CheckoutUC) CheckoutCart(ctx context.Context, userID uuid.UUID, ship domain.ShippingInfo) (*CheckoutResult, error) {
	c, err := uc.Carts.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	var items []domain.LineItem
	if c != nil {
		for _, it := range c.Items {
			items = append(items, domain.LineItem{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
		}
	}
	if len(items) == 0 {
		return nil, domain.Validationf("cart is empty")
	}
	return uc.CreateOrder(ctx, userID, items, ship)
}

// CreateOrder checks, decrements and records every line in one transaction.
// Any failing line aborts the whole order and leaves stock untouched.
func (uc *CheckoutUC) CreateOrder(ctx context.Context, userID uuid.UUID, items []domain.LineItem, ship domain.ShippingInfo) (*CheckoutResult, error) {
	logger := zerolog.Ctx(ctx)
	if len(items) == 0 {
		return nil, domain.Validationf("at least one item is required")
	}
	for i, it := range items {
		if err := domain.Validate(it); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	ship.Normalize()
	if err := ship.Validate(); err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Currency:      uc.currency(),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		ShippingInfo:  ship,
	}
	order.Receipt = "rcpt_" + strings.ReplaceAll(order.ID.String(), "-", "")

	err := uc.Tx.Do(ctx, func(s domain.Stores) error {
		total := decimal.Zero
		lines := make([]domain.OrderItem, 0, len(items))
		for i, it := range items {
			line, err := reserveLine(ctx, s.Products, it)
			if err != nil {
				return fmt.Errorf("item %d: %w", i+1, err)
			}
			total = total.Add(line.Subtotal())
			lines = append(lines, *line)
		}
		order.Items = lines
		order.Amount = total.Round(2)
		return s.Orders.Create(ctx, order)
	})
	if err != nil {
		logger.Info().Err(err).Str("user_id", userID.String()).Msg("checkout rejected")
		return nil, err
	}

	remote, err := uc.Gateway.CreateOrder(ctx, order.Amount, order.Currency, order.Receipt)
	if err != nil {
		logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("gateway order failed, releasing stock")
		if cerr := uc.release(ctx, order); cerr != nil {
			logger.Error().Err(cerr).Str("order_id", order.ID.String()).Msg("stock release failed")
		}
		if !errors.Is(err, domain.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	if err := uc.Orders.SetRemoteOrder(ctx, order.ID, remote.ID); err != nil {
		logger.Error().Err(err).Str("order_id", order.ID.String()).Str("remote_order_id", remote.ID).Msg("storing gateway order failed, releasing stock")
		if cerr := uc.release(ctx, order); cerr != nil {
			logger.Error().Err(cerr).Str("order_id", order.ID.String()).Msg("stock release failed")
		}
		return nil, err
	}
	order.RemoteOrderID = remote.ID
	for i := range order.Items {
		order.Items[i].ProductAvailable = true
	}

	logger.Info().
		Str("order_id", order.ID.String()).
		Str("remote_order_id", remote.ID).
		Str("amount", order.Amount.StringFixed(2)).
		Msg("order created")
	return &CheckoutResult{Order: order, Payment: remote}, nil
}

// reserveLine resolves the effective price and stock of one line, decrements
// the stock with a conditional update and returns the order item snapshot.
func reserveLine(ctx context.Context, products domain.ProductRepo, it domain.LineItem) (*domain.OrderItem, error) {
	p, err := products.FindByID(ctx, it.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, domain.ErrProductNotFound
	}
	var v *domain.Variant
	if it.VariantID != nil {
		v, err = products.FindVariant(ctx, p.ID, *it.VariantID)
		if err != nil {
			return nil, err
		}
		if !v.Active {
			return nil, domain.ErrVariantNotFound
		}
	}

	stockErr := func(available int) error {
		se := &domain.StockError{ProductName: p.Name, Requested: it.Quantity, Available: available}
		if v != nil {
			se.VariantName = v.DisplayName()
		}
		return se
	}
	available := domain.EffectiveStock(p, v)
	if available < it.Quantity {
		return nil, stockErr(available)
	}
	ok, err := products.DecrementStock(ctx, p.ID, it.VariantID, it.Quantity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, stockErr(available)
	}

	line := &domain.OrderItem{
		ProductID:    &p.ID,
		VariantID:    it.VariantID,
		Quantity:     it.Quantity,
		Price:        domain.EffectivePrice(p, v),
		ProductName:  p.Name,
		ProductImage: domain.EffectiveImage(p, v),
	}
	if v != nil {
		line.VariantName = v.DisplayName()
		line.VariantSKU = v.SKU
	}
	return line, nil
}

// release cancels an order that never got a usable gateway order and gives
// its stock back. It outlives a cancelled request context.
func (uc *CheckoutUC) release(ctx context.Context, o *domain.Order) error {
	ctx = context.WithoutCancel(ctx)
	return uc.Tx.Do(ctx, func(s domain.Stores) error {
		if err := restock(ctx, s.Products, o.Items); err != nil {
			return err
		}
		o.Status = domain.OrderStatusCancelled
		return s.Orders.UpdateStatus(ctx, o.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	})
}

func restock(ctx context.Context, products domain.ProductRepo, items []domain.OrderItem) error {
	for _, it := range items {
		if it.ProductID == nil {
			continue
		}
		if err := products.IncrementStock(ctx, *it.ProductID, it.VariantID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}
