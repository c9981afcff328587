package httpserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2"

	"github.com/phenrril/kitehouse/internal/adapters/payments/razorpay"
	"github.com/phenrril/kitehouse/internal/domain"
	"github.com/phenrril/kitehouse/internal/testutil"
)

type orderCreated struct {
	OrderID       string       `json:"orderId"`
	RemoteOrderID string       `json:"remoteOrderId"`
	Amount        int64        `json:"amount"`
	Currency      string       `json:"currency"`
	KeyID         string       `json:"keyId"`
	Order         domain.Order `json:"order"`
}

func TestHealthAndHeaders(t *testing.T) {
	h := newHarness(t)
	rec := h.client().do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = h.client().do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorResponse](t, rec).Code)
}

func TestAdminSessionIsSeparateFromShopper(t *testing.T) {
	h := newHarness(t)

	anon := h.client()
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/api/admin/orders", nil).Code)

	c := h.shopper("asha@example.in")
	assert.True(t, c.has("user_token"))
	// a shopper session means nothing on admin routes
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/admin/orders", nil).Code)

	rec := c.do(http.MethodPost, "/api/admin/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodPost, "/api/admin/login", map[string]string{"username": "admin", "password": "kite-admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.True(t, c.has("admin_token"))
	assert.False(t, c.has("user_token"), "admin login clears the shopper session")

	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/admin/session", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/admin/orders", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/cart", nil).Code)

	// and back: a shopper login clears the admin session
	rec = c.do(http.MethodPost, "/api/user/login", map[string]string{"email": "asha@example.in", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, c.has("admin_token"))
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/user/session", nil).Code)

	c.do(http.MethodPost, "/api/user/logout", nil)
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/user/session", nil).Code)
}

func TestShopperCheckoutAndPayment(t *testing.T) {
	h := newHarness(t)
	p := testutil.Product(t, h.db, "Patang", "49.99", 10,
		testutil.Variant("PAT-L", "Large", "79.50", 5, domain.Attributes{"size": "L"}))
	large := p.Variants[0]
	c := h.shopper("asha@example.in")

	rec := c.do(http.MethodPost, "/api/cart", map[string]any{"productId": p.ID, "variantId": large.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = c.do(http.MethodPost, "/api/cart", map[string]any{"productId": p.ID, "variantId": large.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = c.do(http.MethodPost, "/api/cart", map[string]any{"productId": p.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[domain.CartView](t, rec)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, "288.49", view.Total.StringFixed(2))

	rec = c.do(http.MethodPost, "/api/orders", map[string]any{"shippingInfo": shippingBody()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[orderCreated](t, rec)
	assert.Equal(t, int64(28849), created.Amount)
	assert.Equal(t, "INR", created.Currency)
	assert.Equal(t, "rzp_test", created.KeyID)
	assert.Equal(t, "order_1", created.RemoteOrderID)
	assert.Equal(t, 2, testutil.Stock(t, h.db, p.ID, &large.ID))
	assert.Equal(t, 9, testutil.Stock(t, h.db, p.ID, nil))

	cb := map[string]string{
		"remoteOrderId":   created.RemoteOrderID,
		"remotePaymentId": "pay_1",
		"signature":       razorpay.Signature(created.RemoteOrderID, "pay_1", "not-the-secret"),
		"localOrderId":    created.OrderID,
	}
	rec = c.do(http.MethodPost, "/api/payment/verify", cb)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid payment signature", decode[errorResponse](t, rec).Error)

	cb["signature"] = razorpay.Signature(created.RemoteOrderID, "pay_1", rzpSecret)
	rec = c.do(http.MethodPost, "/api/payment/verify", cb)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decode[struct {
		Success bool         `json:"success"`
		Order   domain.Order `json:"order"`
	}](t, rec)
	assert.True(t, paid.Success)
	assert.Equal(t, domain.PaymentStatusPaid, paid.Order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, paid.Order.Status)
	assert.Equal(t, 2, testutil.Stock(t, h.db, p.ID, &large.ID))

	view = decode[domain.CartView](t, c.do(http.MethodGet, "/api/cart", nil))
	assert.Empty(t, view.Lines)

	list := decode[domain.Paginated[domain.Order]](t, c.do(http.MethodGet, "/api/orders", nil))
	assert.EqualValues(t, 1, list.Pagination.TotalCount)

	// other shoppers cannot see or pay for it
	other := h.shopper("kiran@example.in")
	assert.Equal(t, http.StatusForbidden, other.do(http.MethodGet, "/api/orders/"+created.OrderID, nil).Code)
	assert.Equal(t, http.StatusForbidden, other.do(http.MethodPost, "/api/payment/verify", cb).Code)
}

func TestCheckoutRejections(t *testing.T) {
	h := newHarness(t)
	p := testutil.Product(t, h.db, "Reel", "20", 1)
	c := h.shopper("asha@example.in")
	line := func(id any, qty int) map[string]any {
		return map[string]any{"items": []map[string]any{{"productId": id, "quantity": qty}}, "shippingInfo": shippingBody()}
	}

	rec := c.do(http.MethodPost, "/api/orders", line(p.ID, 2))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	e := decode[errorResponse](t, rec)
	assert.Equal(t, "insufficient_stock", e.Code)
	assert.Contains(t, e.Error, "Reel")

	rec = c.do(http.MethodPost, "/api/orders", line("6c1e9a4e-8d5b-4f7e-9a51-1f0e2d3c4b5a", 1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "not_found", decode[errorResponse](t, rec).Code)

	body := line(p.ID, 1)
	body["shippingInfo"] = map[string]string{"name": "Ravi"}
	rec = c.do(http.MethodPost, "/api/orders", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[errorResponse](t, rec).Code)

	rec = c.do(http.MethodPost, "/api/orders", map[string]any{"shippingInfo": shippingBody()})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty cart")

	h.rzp.setDown(true)
	rec = c.do(http.MethodPost, "/api/orders", line(p.ID, 1))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "payment failed, try again", decode[errorResponse](t, rec).Error)
	assert.Equal(t, 1, testutil.Stock(t, h.db, p.ID, nil))

	assert.Equal(t, http.StatusUnauthorized, h.client().do(http.MethodPost, "/api/orders", line(p.ID, 1)).Code)
}

func TestCartEndpoints(t *testing.T) {
	h := newHarness(t)
	p := testutil.Product(t, h.db, "Manjha", "80", 3)
	c := h.shopper("asha@example.in")

	for _, qty := range []int{0, 101} {
		rec := c.do(http.MethodPost, "/api/cart", map[string]any{"productId": p.ID, "quantity": qty})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := c.do(http.MethodPost, "/api/cart", map[string]any{"productId": p.ID, "quantity": 1, "mode": "swap"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	view := decode[domain.CartView](t, c.do(http.MethodPost, "/api/cart", map[string]any{"productId": p.ID, "quantity": 2}))
	require.Len(t, view.Lines, 1)
	item := view.Lines[0].ItemID.String()

	// every write drops the cached view and the read after it stores a fresh one
	assert.True(t, h.redis.Exists("cart:"+view.UserID.String()))
	view = decode[domain.CartView](t, c.do(http.MethodPost, "/api/cart", map[string]any{"productId": p.ID, "quantity": 1, "mode": "set"}))
	assert.Equal(t, 1, view.Lines[0].Quantity)

	rec = c.do(http.MethodPatch, "/api/cart/"+item, map[string]int{"quantity": 4})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "insufficient_stock", decode[errorResponse](t, rec).Code)
	rec = c.do(http.MethodPatch, "/api/cart/"+item, map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code)

	other := h.shopper("kiran@example.in")
	assert.Equal(t, http.StatusNotFound, other.do(http.MethodPatch, "/api/cart/"+item, map[string]int{"quantity": 1}).Code)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPatch, "/api/cart/not-a-uuid", map[string]int{"quantity": 1}).Code)

	view = decode[domain.CartView](t, c.do(http.MethodDelete, "/api/cart/"+item, nil))
	assert.Empty(t, view.Lines)
	assert.Equal(t, http.StatusOK, c.do(http.MethodDelete, "/api/cart", nil).Code)
}

func TestAdminCatalogAndOrderHistory(t *testing.T) {
	h := newHarness(t)
	admin := h.admin()

	rec := admin.do(http.MethodPost, "/api/admin/categories", map[string]string{"name": "Kites"})
	require.Equal(t, http.StatusCreated, rec.Code)
	cat := decode[domain.Category](t, rec)
	assert.Equal(t, http.StatusConflict, admin.do(http.MethodPost, "/api/admin/categories", map[string]string{"name": "kites"}).Code)

	rec = admin.do(http.MethodPost, "/api/admin/products", map[string]any{
		"name": "Fighter Kite", "price": "35.00", "stock": 4, "categoryId": cat.ID,
		"variants": []map[string]any{{"sku": "FK-R", "attributes": map[string]string{"color": "Red"}, "price": "38.00", "stock": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[domain.Product](t, rec)

	public := decode[domain.Paginated[domain.Product]](t, h.client().do(http.MethodGet, "/api/products?search=fighter&categoryId="+cat.ID.String(), nil))
	require.Len(t, public.Data, 1)
	rec = h.client().do(http.MethodPost, "/api/products/"+p.ID.String()+"/variants/match", map[string]any{"attributes": map[string]string{"color": "Red"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "FK-R", decode[domain.Variant](t, rec).SKU)

	shopper := h.shopper("asha@example.in")
	rec = shopper.do(http.MethodPost, "/api/orders", map[string]any{
		"items":        []map[string]any{{"productId": p.ID, "quantity": 1}},
		"shippingInfo": shippingBody(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[orderCreated](t, rec)

	rec = admin.do(http.MethodDelete, "/api/admin/products/"+p.ID.String(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = admin.do(http.MethodDelete, "/api/admin/products/"+p.ID.String()+"?force=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, h.client().do(http.MethodGet, "/api/products/"+p.ID.String(), nil).Code)

	rec = shopper.do(http.MethodGet, "/api/orders/"+created.OrderID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	o := decode[domain.Order](t, rec)
	require.Len(t, o.Items, 1)
	assert.False(t, o.Items[0].ProductAvailable)
	assert.Equal(t, "Fighter Kite", o.Items[0].ProductName)

	rec = admin.do(http.MethodPatch, "/api/admin/orders/"+created.OrderID+"/status", map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = admin.do(http.MethodPatch, "/api/admin/orders/"+created.OrderID+"/status", map[string]string{"status": "processing"})
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[domain.Paginated[domain.Order]](t, admin.do(http.MethodGet, "/api/admin/orders?status=processing", nil))
	assert.EqualValues(t, 1, list.Pagination.TotalCount)
}

func TestAdminExportOrders(t *testing.T) {
	h := newHarness(t)
	p := testutil.Product(t, h.db, "Patang", "49.99", 10)
	shopper := h.shopper("asha@example.in")
	for i := 0; i < 2; i++ {
		rec := shopper.do(http.MethodPost, "/api/orders", map[string]any{
			"items":        []map[string]any{{"productId": p.ID, "quantity": 2}},
			"shippingInfo": shippingBody(),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := h.admin().do(http.MethodGet, "/api/admin/orders/export", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Order ID", rows[0][0])
	assert.Equal(t, "2 x Patang", rows[1][9])
	items, err := book.GetRows("Items")
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestAdminImportProducts(t *testing.T) {
	h := newHarness(t)
	book := excelize.NewFile()
	rows := [][]any{
		{"Category", "Name", "Price", "Stock", "SKU", "Variant name", "Attributes", "Variant price", "Variant stock"},
		{"Kites", "Patang", "49.99", "10", "PAT-S", "Small", "size=S", "39.99", "4"},
		{"Kites", "Patang", "", "", "PAT-L", "Large", "size=L", "", "2"},
		{"Threads", "Manjha", "80", "7"},
		{"Threads", "Bad Reel", "abc", "1"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, book.SetSheetRow("Sheet1", cell, &r))
	}
	var xlsx bytes.Buffer
	require.NoError(t, book.Write(&xlsx))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "catalog.xlsx")
	require.NoError(t, err)
	_, _ = fw.Write(xlsx.Bytes())
	require.NoError(t, mw.Close())

	admin := h.admin()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/products/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := admin.send(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep struct {
		Products   int      `json:"products"`
		Variants   int      `json:"variants"`
		Categories int      `json:"categories"`
		Skipped    []string `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, 2, rep.Products)
	assert.Equal(t, 2, rep.Variants)
	assert.Equal(t, 2, rep.Categories)
	require.Len(t, rep.Skipped, 1)
	assert.Contains(t, rep.Skipped[0], "row 5")
}

// googleProvider fakes the token and userinfo endpoints; userinfo answers with body.
func googleProvider(t *testing.T, body string) (*httptest.Server, *oauth2.Config) {
	t.Helper()
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(body))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(provider.Close)

	cfg := &oauth2.Config{
		ClientID: "cid", ClientSecret: "csecret", RedirectURL: "http://localhost/auth/google/callback",
		Scopes:   []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{AuthURL: provider.URL + "/auth", TokenURL: provider.URL + "/token"},
	}
	return provider, cfg
}

func TestGoogleLogin(t *testing.T) {
	provider, cfg := googleProvider(t, `{"email":"Meera@Gmail.com","email_verified":true,"name":"Meera"}`)
	h := newHarness(t, func(o *options) {
		o.oauth = cfg
		o.userInfoURL = provider.URL + "/userinfo"
	})
	c := h.client()

	rec := c.do(http.MethodGet, "/auth/google/login", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.True(t, strings.HasPrefix(loc.String(), provider.URL+"/auth"))

	rec = c.do(http.MethodGet, "/auth/google/callback?state=forged&code=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.do(http.MethodGet, "/auth/google/login", nil)
	loc, _ = url.Parse(rec.Header().Get("Location"))
	rec = c.do(http.MethodGet, "/auth/google/callback?state="+loc.Query().Get("state")+"&code=abc", nil)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.True(t, c.has("user_token"))

	rec = c.do(http.MethodGet, "/api/user/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meera@gmail.com")
}

func TestGoogleLoginRejectsUnverifiedEmail(t *testing.T) {
	for name, body := range map[string]string{
		"false":   `{"email":"meera@gmail.com","email_verified":false,"name":"Meera"}`,
		"missing": `{"email":"meera@gmail.com","name":"Meera"}`,
	} {
		t.Run(name, func(t *testing.T) {
			provider, cfg := googleProvider(t, body)
			h := newHarness(t, func(o *options) {
				o.oauth = cfg
				o.userInfoURL = provider.URL + "/userinfo"
			})
			c := h.client()

			rec := c.do(http.MethodGet, "/auth/google/login", nil)
			loc, err := url.Parse(rec.Header().Get("Location"))
			require.NoError(t, err)
			rec = c.do(http.MethodGet, "/auth/google/callback?state="+loc.Query().Get("state")+"&code=abc", nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Contains(t, rec.Body.String(), "oauth_unverified")
			assert.False(t, c.has("user_token"))
			assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/user/session", nil).Code)
		})
	}
}

func TestGoogleLoginDisabled(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusServiceUnavailable, h.client().do(http.MethodGet, "/auth/google/login", nil).Code)
}
