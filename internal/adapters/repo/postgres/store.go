package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/phenrril/kitehouse/internal/domain"
)

// Models lists every table managed by AutoMigrate.
var Models = []any{
	&domain.Category{}, &domain.Product{}, &domain.Variant{},
	&domain.User{}, &domain.Cart{}, &domain.CartItem{},
	&domain.Order{}, &domain.OrderItem{},
}

// Migrate creates or updates the schema plus the indexes AutoMigrate cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return err
	}
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_cart_items_key ON cart_items (cart_id, product_id, variant_id)",
		"CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at)",
	}
	if db.Dialector.Name() == "postgres" {
		stmts = append(stmts,
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_variants_sku_unique ON variants (sku) WHERE sku IS NOT NULL AND sku <> ''",
			"CREATE INDEX IF NOT EXISTS idx_variants_attributes_gin ON variants USING gin (attributes)",
		)
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}

// UnitOfWork runs a callback against repositories bound to one database transaction.
type UnitOfWork struct{ db *gorm.DB }

func NewUnitOfWork(db *gorm.DB) *UnitOfWork { return &UnitOfWork{db: db} }

func (u *UnitOfWork) Do(ctx context.Context, fn func(s domain.Stores) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(domain.Stores{
			Products: NewProductRepo(tx),
			Carts:    NewCartRepo(tx),
			Orders:   NewOrderRepo(tx),
		})
	})
}
