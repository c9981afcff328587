package app

import (
	"context"
	"fmt"
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/phenrril/kitehouse/internal/adapters/cache/redis"
	"github.com/phenrril/kitehouse/internal/adapters/httpserver"
	"github.com/phenrril/kitehouse/internal/adapters/payments/razorpay"
	"github.com/phenrril/kitehouse/internal/adapters/repo/postgres"
	"github.com/phenrril/kitehouse/internal/auth"
	"github.com/phenrril/kitehouse/internal/config"
	"github.com/phenrril/kitehouse/internal/domain"
	"github.com/phenrril/kitehouse/internal/usecase"
)

type App struct {
	Cfg         *config.Config
	DB          *gorm.DB
	Redis       *goredis.Client
	ProductUC   *usecase.ProductUC
	CartUC      *usecase.CartUC
	CheckoutUC  *usecase.CheckoutUC
	PaymentUC   *usecase.PaymentUC
	OrderUC     *usecase.OrderUC
	AuthUC      *usecase.AuthUC
	Sessions    *auth.Dispatcher
	OAuthConfig *oauth2.Config
}

// NewApp wires repositories, adapters and usecases from cfg. Redis is optional:
// without REDIS_ADDR every cart read goes to the database.
func NewApp(cfg *config.Config, db *gorm.DB) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	products := postgres.NewProductRepo(db)
	categories := postgres.NewCategoryRepo(db)
	carts := postgres.NewCartRepo(db)
	orders := postgres.NewOrderRepo(db)
	users := postgres.NewUserRepo(db)
	uow := postgres.NewUnitOfWork(db)

	a := &App{Cfg: cfg, DB: db}

	var cache domain.CartCache = redis.NopCache{}
	if cfg.RedisAddr != "" {
		a.Redis = goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		cache = redis.NewCartCache(a.Redis, cfg.CartCacheTTL)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, cart cache disabled")
	}

	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		log.Warn().Msg("razorpay credentials not set, checkout will fail")
	}
	gateway := razorpay.NewGateway(razorpay.Config{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		BaseURL:   cfg.RazorpayBaseURL,
		Source:    "kitehouse",
		Env:       cfg.Env,
	})

	adminSecret, shopperSecret := cfg.Secrets()
	a.Sessions = &auth.Dispatcher{
		Admin: auth.NewTokenScheme(auth.TokenConfig{
			Role: auth.RoleAdmin, Cookie: "admin_token", Secret: adminSecret, TTL: cfg.AdminTokenTTL, Secure: cfg.IsProduction(),
		}),
		Shopper: auth.NewTokenScheme(auth.TokenConfig{
			Role: auth.RoleShopper, Cookie: "user_token", Secret: shopperSecret, TTL: cfg.ShopperTokenTTL, Secure: cfg.IsProduction(),
		}),
	}

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		a.OAuthConfig = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.BaseURL + "/auth/google/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}

	a.CartUC = &usecase.CartUC{Carts: carts, Products: products, Cache: cache, MaxQuantity: cfg.CartMaxQuantity}
	a.ProductUC = &usecase.ProductUC{
		Products:   products,
		Categories: categories,
		Carts:      carts,
		Orders:     orders,
		Invalidate: a.CartUC.PurgeCache,
	}
	a.CheckoutUC = &usecase.CheckoutUC{Tx: uow, Orders: orders, Carts: carts, Gateway: gateway, Currency: cfg.Currency}
	a.PaymentUC = &usecase.PaymentUC{Orders: orders, Gateway: gateway, Carts: a.CartUC}
	a.OrderUC = &usecase.OrderUC{Orders: orders, Products: products, Tx: uow}
	a.AuthUC = &usecase.AuthUC{Users: users, AdminUsername: cfg.AdminUsername, AdminPassword: cfg.AdminPassword}
	return a, nil
}

func (a *App) HTTPHandler() http.Handler {
	return httpserver.New(httpserver.Deps{
		Products:       a.ProductUC,
		Carts:          a.CartUC,
		Checkout:       a.CheckoutUC,
		Payments:       a.PaymentUC,
		Orders:         a.OrderUC,
		Auth:           a.AuthUC,
		Sessions:       a.Sessions,
		OAuth:          a.OAuthConfig,
		RequestTimeout: a.Cfg.RequestTimeout,
		SecureCookies:  a.Cfg.IsProduction(),
	})
}

func (a *App) Migrate() error {
	return postgres.Migrate(a.DB)
}

func (a *App) Close() error {
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}

// Seed fills an empty catalog with the starter kites. It does nothing once
// any product exists, so it is safe to run on every start.
func (a *App) Seed(ctx context.Context) error {
	total, err := a.ProductUC.Products.Count(ctx)
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	cats := map[string]*domain.Category{}
	for _, c := range []struct{ name, desc string }{
		{"Kites", "Paper and plastic patangs"},
		{"Threads", "Manjha and cotton threads"},
		{"Accessories", "Reels (charkhi) and repair kits"},
	} {
		cat, err := a.ProductUC.CreateCategory(ctx, c.name, c.desc)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", c.name, err)
		}
		cats[c.name] = cat
	}

	money := decimal.RequireFromString
	seed := []struct {
		category string
		in       usecase.ProductInput
	}{
		{"Kites", usecase.ProductInput{
			Name: "Patang", Description: "Classic diamond paper kite", Price: money("49.99"), Stock: 50,
			Variants: []domain.Variant{
				{SKU: "PAT-S-RED", Name: "Small Red", Attributes: domain.Attributes{"size": "S", "color": "Red"}, Price: money("39.99"), Stock: 20},
				{SKU: "PAT-L-RED", Name: "Large Red", Attributes: domain.Attributes{"size": "L", "color": "Red"}, Price: money("79.50"), Stock: 10},
				{SKU: "PAT-L-YEL", Name: "Large Yellow", Attributes: domain.Attributes{"size": "L", "color": "Yellow"}, Price: money("79.50"), Stock: 10},
			},
		}},
		{"Kites", usecase.ProductInput{Name: "Fighter Kite", Description: "Light tissue kite for pench", Price: money("35.00"), Stock: 80}},
		{"Threads", usecase.ProductInput{
			Name: "Manjha", Description: "Glass-coated thread", Price: money("120.00"), Stock: 30,
			Variants: []domain.Variant{
				{SKU: "MAN-1K", Name: "1000 m", Attributes: domain.Attributes{"length": "1000m"}, Price: money("120.00"), Stock: 15},
				{SKU: "MAN-2K", Name: "2000 m", Attributes: domain.Attributes{"length": "2000m"}, Price: money("220.00"), Stock: 10},
			},
		}},
		{"Accessories", usecase.ProductInput{Name: "Reel", Description: "Wooden charkhi", Price: money("150.00"), Stock: 25}},
	}
	for _, s := range seed {
		in := s.in
		in.CategoryID = &cats[s.category].ID
		if _, err := a.ProductUC.Create(ctx, in); err != nil {
			return fmt.Errorf("seed product %s: %w", in.Name, err)
		}
	}
	log.Info().Int("products", len(seed)).Msg("catalog seeded")
	return nil
}
