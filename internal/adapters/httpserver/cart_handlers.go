package httpserver

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/phenrril/kitehouse/internal/auth"
	"github.com/phenrril/kitehouse/internal/usecase"
)

// shopperID is only called behind auth.Require(RoleShopper).
func shopperID(r *http.Request) uuid.UUID {
	p, _ := auth.FromContext(r.Context())
	return p.UserID
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := s.carts.View(r.Context(), shopperID(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) upsertCart(w http.ResponseWriter, r *http.Request) {
	var req usecase.CartUpsert
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	v, err := s.carts.Upsert(r.Context(), shopperID(r), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	v, err := s.carts.UpdateQuantity(r.Context(), shopperID(r), id, req.Quantity)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	v, err := s.carts.RemoveItem(r.Context(), shopperID(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.carts.Clear(r.Context(), shopperID(r)); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
