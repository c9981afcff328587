package httpserver

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/phenrril/kitehouse/internal/domain"
	"github.com/phenrril/kitehouse/internal/usecase"
)

type createOrderRequest struct {
	// Items is optional; without it the shopper's cart is checked out.
	Items        []domain.LineItem   `json:"items"`
	ShippingInfo domain.ShippingInfo `json:"shippingInfo"`
}

type createOrderResponse struct {
	OrderID       uuid.UUID     `json:"orderId"`
	RemoteOrderID string        `json:"remoteOrderId"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	KeyID         string        `json:"keyId,omitempty"`
	Order         *domain.Order `json:"order"`
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	var (
		res *usecase.CheckoutResult
		err error
	)
	if len(req.Items) == 0 {
		res, err = s.checkout.CheckoutCart(r.Context(), shopperID(r), req.ShippingInfo)
	} else {
		res, err = s.checkout.CreateOrder(r.Context(), shopperID(r), req.Items, req.ShippingInfo)
	}
	if errors.Is(err, domain.ErrNotFound) {
		// unknown products reject the checkout like any other bad input
		writeError(w, http.StatusBadRequest, "not_found", err.Error())
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID:       res.Order.ID,
		RemoteOrderID: res.Payment.ID,
		Amount:        res.Payment.Amount,
		Currency:      res.Payment.Currency,
		KeyID:         res.Payment.KeyID,
		Order:         res.Order,
	})
}

func (s *Server) listMyOrders(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	list, total, err := s.orders.ListMine(r.Context(), shopperID(r), page)
	if err != nil {
		fail(w, r, err)
		return
	}
	paginated(w, list, page, total)
}

func (s *Server) getMyOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := s.orders.Get(r.Context(), shopperID(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var cb usecase.PaymentCallback
	if err := decodeJSON(w, r, &cb); err != nil {
		fail(w, r, err)
		return
	}
	o, err := s.payments.Verify(r.Context(), shopperID(r), cb)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}
