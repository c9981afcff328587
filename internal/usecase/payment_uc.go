package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phenrril/kitehouse/internal/domain"
)

// PaymentCallback is what the client posts back after the hosted payment flow.
type PaymentCallback struct {
	RemoteOrderID   string    `json:"remoteOrderId"`
	RemotePaymentID string    `json:"remotePaymentId"`
	Signature       string    `json:"signature"`
	OrderID         uuid.UUID `json:"localOrderId"`
}

type CartClearer interface {
	Clear(ctx context.Context, userID uuid.UUID) error
}

type PaymentUC struct {
	Orders  domain.OrderRepo
	Gateway domain.PaymentGateway
	Carts   CartClearer
}

// Verify checks the callback signature and confirms the order. Stock was
// already taken at order creation and is not touched again. Confirming an
// already paid order returns it unchanged.
func (uc *PaymentUC) Verify(ctx context.Context, userID uuid.UUID, cb PaymentCallback) (*domain.Order, error) {
	logger := zerolog.Ctx(ctx)
	cb.RemoteOrderID = strings.TrimSpace(cb.RemoteOrderID)
	cb.RemotePaymentID = strings.TrimSpace(cb.RemotePaymentID)
	cb.Signature = strings.TrimSpace(cb.Signature)
	if cb.RemoteOrderID == "" || cb.RemotePaymentID == "" || cb.Signature == "" || cb.OrderID == uuid.Nil {
		return nil, domain.Validationf("missing payment verification parameters")
	}
	if !uc.Gateway.VerifySignature(cb.RemoteOrderID, cb.RemotePaymentID, cb.Signature) {
		logger.Warn().Str("order_id", cb.OrderID.String()).Msg("payment signature mismatch")
		return nil, domain.ErrSignatureMismatch
	}

	o, err := uc.Orders.FindByID(ctx, cb.OrderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, domain.ErrForbidden
	}
	// A valid signature for another order must not confirm this one.
	if o.RemoteOrderID != cb.RemoteOrderID {
		logger.Warn().Str("order_id", o.ID.String()).Str("remote_order_id", cb.RemoteOrderID).Msg("remote order id does not match")
		return nil, domain.ErrSignatureMismatch
	}
	if o.IsPaid() {
		return o, nil
	}
	if o.Status == domain.OrderStatusCancelled {
		return nil, domain.Validationf("order is cancelled")
	}

	ok, err := uc.Orders.MarkPaid(ctx, o.ID, cb.RemotePaymentID, domain.OrderStatusConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		// the order changed since it was read: paid by a concurrent callback or cancelled
		cur, err := uc.Orders.FindByID(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if cur.IsPaid() {
			return cur, nil
		}
		logger.Warn().Str("order_id", o.ID.String()).Str("status", string(cur.Status)).Msg("order not payable")
		return nil, domain.Validationf("order is cancelled")
	}
	if uc.Carts != nil {
		if err := uc.Carts.Clear(ctx, o.UserID); err != nil {
			logger.Warn().Err(err).Str("order_id", o.ID.String()).Msg("cart clear after payment")
		}
	}
	logger.Info().Str("order_id", o.ID.String()).Str("payment_id", cb.RemotePaymentID).Msg("payment confirmed")
	return uc.Orders.FindByID(ctx, o.ID)
}
