package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/phenrril/kitehouse/internal/adapters/repo/postgres"
	"github.com/phenrril/kitehouse/internal/domain"
)

func Price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Product stores an active product with the given variants and returns it reloaded.
func Product(t testing.TB, db *gorm.DB, name, price string, stock int, variants ...domain.Variant) *domain.Product {
	t.Helper()
	for i := range variants {
		variants[i].Active = true
	}
	p := &domain.Product{
		Name:     name,
		Price:    Price(price),
		Stock:    stock,
		ImageURL: "https://img.example/" + name + ".jpg",
		Active:   true,
		Variants: variants,
	}
	repo := postgres.NewProductRepo(db)
	ctx := context.Background()
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("save product: %v", err)
	}
	out, err := repo.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return out
}

func Variant(sku, name, price string, stock int, attrs domain.Attributes) domain.Variant {
	return domain.Variant{SKU: sku, Name: name, Price: Price(price), Stock: stock, Attributes: attrs}
}

func User(t testing.TB, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Email: email, Name: "Test User"}
	if err := postgres.NewUserRepo(db).Save(context.Background(), u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

// Stock reads the current effective stock straight from the tables.
func Stock(t testing.TB, db *gorm.DB, productID uuid.UUID, variantID *uuid.UUID) int {
	t.Helper()
	var n int
	var err error
	if variantID != nil {
		err = db.Model(&domain.Variant{}).Select("stock").Where("id = ?", *variantID).Scan(&n).Error
	} else {
		err = db.Model(&domain.Product{}).Select("stock").Where("id = ?", productID).Scan(&n).Error
	}
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return n
}
