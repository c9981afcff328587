package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/phenrril/kitehouse/internal/adapters/payments/razorpay"
	"github.com/phenrril/kitehouse/internal/adapters/repo/postgres"
	"github.com/phenrril/kitehouse/internal/domain"
	"github.com/phenrril/kitehouse/internal/testutil"
)

const testSecret = "s3cret"

// fakeGateway hands out sequential order ids and signs like Razorpay does.
type fakeGateway struct {
	mu     sync.Mutex
	calls  int
	fail   error
	amount decimal.Decimal
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount decimal.Decimal, currency, receipt string) (*domain.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail != nil {
		return nil, g.fail
	}
	g.amount = amount
	return &domain.GatewayOrder{
		ID:       fmt.Sprintf("order_%d", g.calls),
		Amount:   razorpay.ToMinorUnits(amount),
		Currency: currency,
		Receipt:  receipt,
	}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return razorpay.Signature(orderID, paymentID, testSecret) == signature
}

type env struct {
	db       *gorm.DB
	gateway  *fakeGateway
	products *ProductUC
	carts    *CartUC
	checkout *CheckoutUC
	payments *PaymentUC
	orders   *OrderUC
	auth     *AuthUC
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	productRepo := postgres.NewProductRepo(db)
	cartRepo := postgres.NewCartRepo(db)
	orderRepo := postgres.NewOrderRepo(db)
	uow := postgres.NewUnitOfWork(db)
	gw := &fakeGateway{}

	carts := &CartUC{Carts: cartRepo, Products: productRepo}
	return &env{
		db:      db,
		gateway: gw,
		products: &ProductUC{
			Products:   productRepo,
			Categories: postgres.NewCategoryRepo(db),
			Carts:      cartRepo,
			Orders:     orderRepo,
			Invalidate: carts.PurgeCache,
		},
		carts:    carts,
		checkout: &CheckoutUC{Tx: uow, Orders: orderRepo, Carts: cartRepo, Gateway: gw, Currency: "INR"},
		payments: &PaymentUC{Orders: orderRepo, Gateway: gw, Carts: carts},
		orders:   &OrderUC{Orders: orderRepo, Products: productRepo, Tx: uow},
		auth:     &AuthUC{Users: postgres.NewUserRepo(db), AdminUsername: "admin", AdminPassword: "kite-admin", BcryptCost: 4},
	}
}

func shipping() domain.ShippingInfo {
	return domain.ShippingInfo{Name: "Ravi Kumar", Email: "Ravi@Example.in", Phone: "+91 98765 43210", Address: "12 MG Road, Pune"}
}

func line(p *domain.Product, qty int) domain.LineItem {
	return domain.LineItem{ProductID: p.ID, Quantity: qty}
}

func variantLine(t *testing.T, p *domain.Product, sku string, qty int) domain.LineItem {
	id := variantBySKU(t, p, sku).ID
	return domain.LineItem{ProductID: p.ID, VariantID: &id, Quantity: qty}
}

func countOrders(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Order{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func variantBySKU(t *testing.T, p *domain.Product, sku string) *domain.Variant {
	t.Helper()
	for i := range p.Variants {
		if p.Variants[i].SKU == sku {
			return &p.Variants[i]
		}
	}
	t.Fatalf("variant %s not found", sku)
	return nil
}
