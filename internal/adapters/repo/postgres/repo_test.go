package postgres_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenrril/kitehouse/internal/adapters/repo/postgres"
	"github.com/phenrril/kitehouse/internal/domain"
	"github.com/phenrril/kitehouse/internal/testutil"
)

func TestProductRepo_FindByIDPreloadsVariants(t *testing.T) {
	db := testutil.NewDB(t)
	p := testutil.Product(t, db, "Patang", "49.99", 100,
		testutil.Variant("PATANG-S", "Small", "49.99", 50, domain.Attributes{"size": "Small"}),
		testutil.Variant("PATANG-L", "Large", "69.99", 50, domain.Attributes{"size": "Large"}),
	)

	require.Len(t, p.Variants, 2)
	assert.True(t, p.Price.Equal(testutil.Price("49.99")))
	assert.Equal(t, "Large", p.Variants[0].Attributes["size"])
	assert.Equal(t, "PATANG-S", p.Variants[1].SKU)

	_, err := postgres.NewProductRepo(db).FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProductRepo_FindVariantScopedToProduct(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewProductRepo(db)
	a := testutil.Product(t, db, "A", "10", 1, testutil.Variant("A-1", "One", "11", 1, nil))
	b := testutil.Product(t, db, "B", "20", 1)

	v, err := repo.FindVariant(context.Background(), a.ID, a.Variants[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "A-1", v.SKU)

	_, err = repo.FindVariant(context.Background(), b.ID, a.Variants[0].ID)
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
}

func TestProductRepo_ListFilters(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewProductRepo(db)
	ctx := context.Background()
	testutil.Product(t, db, "Fighter Kite", "10", 1)
	testutil.Product(t, db, "Box Kite", "20", 1)
	hidden := testutil.Product(t, db, "Old Kite", "5", 1)
	testutil.Product(t, db, "Manjha Thread", "30", 1)
	require.NoError(t, repo.SetActive(ctx, hidden.ID, false))

	list, total, err := repo.List(ctx, domain.ProductFilter{Query: "kite", ActiveOnly: true, Page: domain.Page{Page: 1, Limit: 10}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	list, total, err = repo.List(ctx, domain.ProductFilter{Query: "KITE", Page: domain.Page{Page: 2, Limit: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 1)
}

func TestProductRepo_DecrementStockIsConditional(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewProductRepo(db)
	ctx := context.Background()
	p := testutil.Product(t, db, "Reel", "299.99", 3, testutil.Variant("R-1", "Steel", "349.99", 2, nil))
	vid := p.Variants[0].ID

	ok, err := repo.DecrementStock(ctx, p.ID, nil, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, testutil.Stock(t, db, p.ID, nil))

	ok, err = repo.DecrementStock(ctx, p.ID, nil, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, testutil.Stock(t, db, p.ID, nil))

	ok, err = repo.DecrementStock(ctx, p.ID, &vid, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, testutil.Stock(t, db, p.ID, &vid))
	// the product row is untouched by a variant decrement
	assert.Equal(t, 1, testutil.Stock(t, db, p.ID, nil))

	require.NoError(t, repo.IncrementStock(ctx, p.ID, &vid, 5))
	assert.Equal(t, 5, testutil.Stock(t, db, p.ID, &vid))
}

func TestProductRepo_DeleteRemovesVariants(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewProductRepo(db)
	ctx := context.Background()
	p := testutil.Product(t, db, "Gone", "1", 1, testutil.Variant("G-1", "x", "1", 1, nil))

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err := repo.FindByID(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	var n int64
	require.NoError(t, db.Model(&domain.Variant{}).Where("product_id = ?", p.ID).Count(&n).Error)
	assert.Zero(t, n)

	assert.ErrorIs(t, repo.Delete(ctx, p.ID), domain.ErrProductNotFound)
}

func TestCartRepo_GetOrCreateIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewCartRepo(db)
	ctx := context.Background()
	userID := uuid.New()

	c1, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	c2, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)

	var n int64
	require.NoError(t, db.Model(&domain.Cart{}).Where("user_id = ?", userID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCartRepo_FindItemDistinguishesNullVariant(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewCartRepo(db)
	ctx := context.Background()
	p := testutil.Product(t, db, "Kite", "10", 5, testutil.Variant("K-1", "Red", "12", 5, nil))
	vid := p.Variants[0].ID
	c, err := repo.GetOrCreate(ctx, uuid.New())
	require.NoError(t, err)

	require.NoError(t, repo.SaveItem(ctx, &domain.CartItem{CartID: c.ID, ProductID: p.ID, Quantity: 1}))
	require.NoError(t, repo.SaveItem(ctx, &domain.CartItem{CartID: c.ID, ProductID: p.ID, VariantID: &vid, Quantity: 2}))

	plain, err := repo.FindItem(ctx, c.ID, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, plain.Quantity)

	withVariant, err := repo.FindItem(ctx, c.ID, p.ID, &vid)
	require.NoError(t, err)
	assert.Equal(t, 2, withVariant.Quantity)

	loaded, err := repo.FindByUser(ctx, c.UserID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	assert.NotNil(t, loaded.Items[0].Product)
	assert.NotNil(t, loaded.Items[1].Variant)
}

func TestCartRepo_DeleteItemScopedToCart(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewCartRepo(db)
	ctx := context.Background()
	p := testutil.Product(t, db, "Kite", "10", 5)
	mine, _ := repo.GetOrCreate(ctx, uuid.New())
	theirs, _ := repo.GetOrCreate(ctx, uuid.New())
	it := &domain.CartItem{CartID: theirs.ID, ProductID: p.ID, Quantity: 1}
	require.NoError(t, repo.SaveItem(ctx, it))

	require.NoError(t, repo.DeleteItem(ctx, mine.ID, it.ID))
	_, err := repo.FindItemByID(ctx, theirs.ID, it.ID)
	require.NoError(t, err)

	n, err := repo.DeleteByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestOrderRepo_CreateKeepsItemOrder(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewOrderRepo(db)
	ctx := context.Background()
	pid := uuid.New()
	o := &domain.Order{
		UserID:        uuid.New(),
		Amount:        testutil.Price("30"),
		Currency:      "INR",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		ShippingInfo:  domain.ShippingInfo{Name: "Ravi", Email: "ravi@example.in", Phone: "99", Address: "Pune"},
		Items: []domain.OrderItem{
			{ProductID: &pid, Quantity: 1, Price: testutil.Price("10"), ProductName: "first"},
			{ProductID: &pid, Quantity: 2, Price: testutil.Price("10"), ProductName: "second"},
		},
	}
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "first", got.Items[0].ProductName)
	assert.Equal(t, "second", got.Items[1].ProductName)
	assert.Equal(t, "Pune", got.ShippingInfo.Address)
	assert.True(t, got.Total().Equal(testutil.Price("30")))

	n, err := repo.CountByProduct(ctx, pid)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	ok, err := repo.MarkPaid(ctx, o.ID, "pay_1", domain.OrderStatusConfirmed)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.MarkPaid(ctx, o.ID, "pay_2", domain.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.False(t, ok, "already paid")
	got, err = repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid())
	assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, "pay_1", *got.PaymentID)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.New(), domain.OrderStatusPending, domain.OrderStatusCancelled), domain.ErrOrderNotFound)
	// a cancel based on a stale pending read must not overwrite the payment
	assert.ErrorIs(t, repo.UpdateStatus(ctx, o.ID, domain.OrderStatusPending, domain.OrderStatusCancelled), domain.ErrConflict)
}

func TestOrderRepo_MarkPaidSkipsCancelled(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewOrderRepo(db)
	ctx := context.Background()
	o := &domain.Order{
		UserID:        uuid.New(),
		Amount:        testutil.Price("10"),
		Currency:      "INR",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
	}
	require.NoError(t, repo.Create(ctx, o))
	require.NoError(t, repo.UpdateStatus(ctx, o.ID, domain.OrderStatusPending, domain.OrderStatusCancelled))

	ok, err := repo.MarkPaid(ctx, o.ID, "pay_1", domain.OrderStatusConfirmed)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)
	assert.False(t, got.IsPaid())
}

func TestOrderRepo_ListFilters(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewOrderRepo(db)
	ctx := context.Background()
	user := uuid.New()
	for i, st := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusPending} {
		owner := user
		if i == 2 {
			owner = uuid.New()
		}
		require.NoError(t, repo.Create(ctx, &domain.Order{UserID: owner, Amount: testutil.Price("1"), Currency: "INR", Status: st, PaymentStatus: domain.PaymentStatusPending}))
	}

	_, total, err := repo.List(ctx, domain.OrderFilter{Status: domain.OrderStatusPending})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	mine, total, err := repo.List(ctx, domain.OrderFilter{UserID: &user})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, mine, 2)
}

func TestCategoryRepo_ListCountsProducts(t *testing.T) {
	db := testutil.NewDB(t)
	cats := postgres.NewCategoryRepo(db)
	products := postgres.NewProductRepo(db)
	ctx := context.Background()

	kites := &domain.Category{Name: "Kites"}
	threads := &domain.Category{Name: "Threads"}
	require.NoError(t, cats.Save(ctx, kites))
	require.NoError(t, cats.Save(ctx, threads))
	for _, name := range []string{"a", "b"} {
		p := testutil.Product(t, db, name, "1", 1)
		p.CategoryID = &kites.ID
		require.NoError(t, products.Save(ctx, p))
	}

	list, total, err := cats.List(ctx, domain.CategoryFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, "Kites", list[0].Name)
	assert.EqualValues(t, 2, list[0].Products)
	assert.EqualValues(t, 0, list[1].Products)

	found, err := cats.FindByName(ctx, "  kites ")
	require.NoError(t, err)
	assert.Equal(t, kites.ID, found.ID)

	require.NoError(t, cats.Delete(ctx, kites.ID))
	var orphaned int64
	require.NoError(t, db.Model(&domain.Product{}).Where("category_id IS NULL").Count(&orphaned).Error)
	assert.EqualValues(t, 2, orphaned)
	assert.ErrorIs(t, cats.Delete(ctx, kites.ID), domain.ErrCategoryNotFound)
}

func TestUserRepo_EmailIsCaseInsensitive(t *testing.T) {
	db := testutil.NewDB(t)
	repo := postgres.NewUserRepo(db)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &domain.User{Email: " Asha@Example.IN ", Name: "Asha"}))

	u, err := repo.FindByEmail(ctx, "asha@example.in")
	require.NoError(t, err)
	assert.Equal(t, "asha@example.in", u.Email)

	_, err = repo.FindByEmail(ctx, "nobody@example.in")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	uow := postgres.NewUnitOfWork(db)
	ctx := context.Background()
	p := testutil.Product(t, db, "Kite", "10", 5)

	err := uow.Do(ctx, func(s domain.Stores) error {
		ok, err := s.Products.DecrementStock(ctx, p.ID, nil, 3)
		require.NoError(t, err)
		require.True(t, ok)
		return domain.ErrInsufficientStock
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, testutil.Stock(t, db, p.ID, nil))
}
