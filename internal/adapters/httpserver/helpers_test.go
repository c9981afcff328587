package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/phenrril/kitehouse/internal/adapters/cache/redis"
	"github.com/phenrril/kitehouse/internal/adapters/payments/razorpay"
	"github.com/phenrril/kitehouse/internal/adapters/repo/postgres"
	"github.com/phenrril/kitehouse/internal/auth"
	"github.com/phenrril/kitehouse/internal/testutil"
	"github.com/phenrril/kitehouse/internal/usecase"
)

const rzpSecret = "s3cret"

// fakeRazorpay answers POST /v1/orders like the real API.
type fakeRazorpay struct {
	mu   sync.Mutex
	n    int
	down bool
}

func (f *fakeRazorpay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Receipt  string `json:"receipt"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.n++
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": fmt.Sprintf("order_%d", f.n), "entity": "order", "amount": body.Amount,
		"currency": body.Currency, "receipt": body.Receipt, "status": "created",
	})
}

func (f *fakeRazorpay) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

type harness struct {
	t     *testing.T
	db    *gorm.DB
	rzp   *fakeRazorpay
	redis *miniredis.Miniredis
	h     http.Handler
}

type options struct {
	oauth       *oauth2.Config
	userInfoURL string
}

func newHarness(t *testing.T, opts ...func(*options)) *harness {
	t.Helper()
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	db := testutil.NewDB(t)
	rzp := &fakeRazorpay{}
	rzpSrv := httptest.NewServer(rzp)
	t.Cleanup(rzpSrv.Close)
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	products := postgres.NewProductRepo(db)
	carts := postgres.NewCartRepo(db)
	orders := postgres.NewOrderRepo(db)
	uow := postgres.NewUnitOfWork(db)
	gw := razorpay.NewGateway(razorpay.Config{KeyID: "rzp_test", KeySecret: rzpSecret, BaseURL: rzpSrv.URL})

	cartUC := &usecase.CartUC{Carts: carts, Products: products, Cache: redis.NewCartCache(client, time.Minute)}
	h := New(Deps{
		Products: &usecase.ProductUC{
			Products: products, Categories: postgres.NewCategoryRepo(db), Carts: carts, Orders: orders,
			Invalidate: cartUC.PurgeCache,
		},
		Carts:    cartUC,
		Checkout: &usecase.CheckoutUC{Tx: uow, Orders: orders, Carts: carts, Gateway: gw, Currency: "INR"},
		Payments: &usecase.PaymentUC{Orders: orders, Gateway: gw, Carts: cartUC},
		Orders:   &usecase.OrderUC{Orders: orders, Products: products, Tx: uow},
		Auth:     &usecase.AuthUC{Users: postgres.NewUserRepo(db), AdminUsername: "admin", AdminPassword: "kite-admin", BcryptCost: 4},
		Sessions: &auth.Dispatcher{
			Admin:   auth.NewTokenScheme(auth.TokenConfig{Role: auth.RoleAdmin, Cookie: "admin_token", Secret: "admin-secret", TTL: 24 * time.Hour}),
			Shopper: auth.NewTokenScheme(auth.TokenConfig{Role: auth.RoleShopper, Cookie: "user_token", Secret: "user-secret", TTL: 7 * 24 * time.Hour}),
		},
		OAuth:       o.oauth,
		UserInfoURL: o.userInfoURL,
	})
	return &harness{t: t, db: db, rzp: rzp, redis: mr, h: h}
}

// client keeps cookies between requests like a browser would.
type client struct {
	h   *harness
	jar map[string]*http.Cookie
}

func (h *harness) client() *client { return &client{h: h, jar: map[string]*http.Cookie{}} }

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.h.t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(c.h.t, err)
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *client) send(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.jar {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.h.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.jar, ck.Name)
			continue
		}
		c.jar[ck.Name] = ck
	}
	return rec
}

func (c *client) has(cookie string) bool {
	_, ok := c.jar[cookie]
	return ok
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) shopper(email string) *client {
	h.t.Helper()
	c := h.client()
	rec := c.do(http.MethodPost, "/api/user/register", map[string]string{"name": "Shopper", "email": email, "password": "secret1"})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return c
}

func (h *harness) admin() *client {
	h.t.Helper()
	c := h.client()
	rec := c.do(http.MethodPost, "/api/admin/login", map[string]string{"username": "admin", "password": "kite-admin"})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	return c
}

func shippingBody() map[string]string {
	return map[string]string{"name": "Ravi Kumar", "email": "ravi@example.in", "phone": "+91 98765 43210", "address": "12 MG Road, Pune"}
}
