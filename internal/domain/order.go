package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusConfirmed, OrderStatusCancelled:
		return st, nil
	}
	return "", Validationf("unknown order status %q", s)
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type ShippingInfo struct {
	Name    string `json:"name" validate:"required,max=140"`
	Email   string `json:"email" validate:"required,email,max=140"`
	Phone   string `json:"phone" validate:"required,max=40"`
	Address string `json:"address" validate:"required,max=500"`
}

func (s *ShippingInfo) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Phone = strings.TrimSpace(s.Phone)
	s.Address = strings.TrimSpace(s.Address)
}

func (s ShippingInfo) Validate() error {
	return validateNamed("shipping ", s)
}

type Order struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID       `gorm:"type:uuid;index" json:"userId"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	Status        OrderStatus     `gorm:"type:varchar(20);index" json:"status"`
	PaymentStatus PaymentStatus   `gorm:"type:varchar(20);index" json:"paymentStatus"`
	PaymentID     *string         `gorm:"size:80" json:"paymentId"`
	RemoteOrderID string          `gorm:"size:80;index" json:"remoteOrderId"`
	Receipt       string          `gorm:"size:60" json:"receipt"`
	ShippingInfo  ShippingInfo    `gorm:"type:jsonb;serializer:json" json:"shippingInfo"`
	Items         []OrderItem     `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OrderItem only holds weak references to Product and Variant; the snapshot
// fields keep historical orders renderable once those rows are gone.
type OrderItem struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID          uuid.UUID       `gorm:"type:uuid;index" json:"orderId"`
	Position         int             `gorm:"not null;default:0" json:"-"`
	ProductID        *uuid.UUID      `gorm:"type:uuid;index" json:"productId"`
	VariantID        *uuid.UUID      `gorm:"type:uuid;index" json:"variantId"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	Price            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	ProductName      string          `gorm:"size:180" json:"productName"`
	ProductImage     string          `gorm:"size:255" json:"productImage"`
	VariantName      string          `gorm:"size:140" json:"variantName,omitempty"`
	VariantSKU       string          `gorm:"size:100" json:"variantSku,omitempty"`
	ProductAvailable bool            `gorm:"-" json:"productAvailable"`
}

func (it OrderItem) Subtotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
}

// Total recomputes the order amount from its item snapshots.
func (o *Order) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Subtotal())
	}
	return sum.Round(2)
}

func (o *Order) IsPaid() bool { return o.PaymentStatus == PaymentStatusPaid }

// LineItem is one requested (product, variant, quantity) tuple at checkout.
type LineItem struct {
	ProductID uuid.UUID  `json:"productId" validate:"required"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Quantity  int        `json:"quantity" validate:"gte=1"`
}

type OrderFilter struct {
	Status OrderStatus
	UserID *uuid.UUID
	Page   Page
}

type OrderRepo interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f OrderFilter) ([]Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus) error
	SetRemoteOrder(ctx context.Context, id uuid.UUID, remoteOrderID string) error
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, st OrderStatus) (bool, error)
	CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}

// GatewayOrder is the payment provider's handle for an order created before payment.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	KeyID    string `json:"keyId,omitempty"`
}

type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*GatewayOrder, error)
	VerifySignature(remoteOrderID, remotePaymentID, signature string) bool
}

// Stores groups the repositories that take part in one transaction.
type Stores struct {
	Products ProductRepo
	Carts    CartRepo
	Orders   OrderRepo
}

type UnitOfWork interface {
	Do(ctx context.Context, fn func(s Stores) error) error
}
