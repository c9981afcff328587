package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"

	"github.com/phenrril/kitehouse/internal/domain"
)

const DefaultBaseURL = "https://api.razorpay.com"

type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	// Source ends up in the order notes.
	Source  string
	Env     string
	Timeout time.Duration
}

type Gateway struct {
	keyID      string
	keySecret  string
	baseURL    string
	notes      map[string]string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*domain.GatewayOrder]
}

func NewGateway(cfg Config) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	notes := map[string]string{}
	if cfg.Source != "" {
		notes["source"] = cfg.Source
	}
	if cfg.Env != "" {
		notes["env"] = cfg.Env
	}
	return &Gateway{
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		notes:      notes,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*domain.GatewayOrder](gobreaker.Settings{
			Name:        "razorpay",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		}),
	}
}

type orderReq struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	PaymentCapture int               `json:"payment_capture"`
	Notes          map[string]string `json:"notes,omitempty"`
}

type orderResp struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type errorResp struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// ToMinorUnits converts a decimal amount into paise (or cents), rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreateOrder registers a remote order for the given amount. Every failure,
// including an open breaker, is reported as ErrGatewayUnavailable; nothing is retried.
func (g *Gateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*domain.GatewayOrder, error) {
	if g.keyID == "" || g.keySecret == "" {
		return nil, fmt.Errorf("%w: razorpay credentials are not configured", domain.ErrGatewayUnavailable)
	}
	minor := ToMinorUnits(amount)
	if minor <= 0 {
		return nil, fmt.Errorf("%w: invalid order amount %s", domain.ErrGatewayUnavailable, amount.String())
	}

	out, err := g.breaker.Execute(func() (*domain.GatewayOrder, error) {
		return g.createOrder(ctx, orderReq{
			Amount:         minor,
			Currency:       strings.ToUpper(currency),
			Receipt:        receipt,
			PaymentCapture: 1,
			Notes:          g.notes,
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}
	return out, nil
}

func (g *Gateway) createOrder(ctx context.Context, body orderReq) (*domain.GatewayOrder, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode order: %v", domain.ErrGatewayUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	res, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: razorpay request: %v", domain.ErrGatewayUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		var e errorResp
		if json.Unmarshal(raw, &e) == nil && e.Error.Description != "" {
			return nil, fmt.Errorf("%w: razorpay status %d: %s %s", domain.ErrGatewayUnavailable, res.StatusCode, e.Error.Code, e.Error.Description)
		}
		return nil, fmt.Errorf("%w: razorpay status %d", domain.ErrGatewayUnavailable, res.StatusCode)
	}

	var o orderResp
	if err := json.NewDecoder(res.Body).Decode(&o); err != nil {
		return nil, fmt.Errorf("%w: decode order: %v", domain.ErrGatewayUnavailable, err)
	}
	if o.ID == "" {
		return nil, fmt.Errorf("%w: razorpay returned no order id", domain.ErrGatewayUnavailable)
	}
	return &domain.GatewayOrder{
		ID:       o.ID,
		Amount:   o.Amount,
		Currency: o.Currency,
		Receipt:  o.Receipt,
		KeyID:    g.keyID,
	}, nil
}

// Signature is hex(HMAC-SHA256("{orderID}|{paymentID}", secret)).
func Signature(orderID, paymentID, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature compares in constant time. Without a configured secret nothing verifies.
func (g *Gateway) VerifySignature(orderID, paymentID, signature string) bool {
	if g.keySecret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	want := Signature(orderID, paymentID, g.keySecret)
	return hmac.Equal([]byte(want), []byte(signature))
}
