package httpserver

import (
	"net/http"

	"github.com/phenrril/kitehouse/internal/domain"
	"github.com/phenrril/kitehouse/internal/usecase"
)

// --- Products ---

func (s *Server) adminListProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f.ActiveOnly = queryBool(r, "activeOnly")
	list, total, err := s.products.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	paginated(w, list, f.Page, total)
}

func (s *Server) adminGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.products.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in usecase.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.products.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) adminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var in usecase.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.products.Update(r.Context(), id, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// adminDeleteProduct answers 409 for products that appear in orders unless ?force=true.
func (s *Server) adminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.products.Delete(r.Context(), id, queryBool(r, "force")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminSetProductStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.IsActive == nil {
		fail(w, r, domain.Validationf("isActive is required"))
		return
	}
	p, err := s.products.SetActive(r.Context(), id, *req.IsActive)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) adminAddVariant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var v domain.Variant
	if err := decodeJSON(w, r, &v); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.products.AddVariant(r.Context(), id, v)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) adminUpdateVariant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	variantID, err := pathID(r, "variantId")
	if err != nil {
		fail(w, r, err)
		return
	}
	v := domain.Variant{Active: true}
	if err := decodeJSON(w, r, &v); err != nil {
		fail(w, r, err)
		return
	}
	out, err := s.products.UpdateVariant(r.Context(), id, variantID, v)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminDeleteVariant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	variantID, err := pathID(r, "variantId")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.products.DeleteVariant(r.Context(), id, variantID); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Categories ---

func (s *Server) adminCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	c, err := s.products.CreateCategory(r.Context(), req.Name, req.Description)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) adminDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.products.DeleteCategory(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Orders ---

func orderFilter(r *http.Request) (domain.OrderFilter, error) {
	f := domain.OrderFilter{Page: pageFrom(r)}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := domain.ParseOrderStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	return f, nil
}

func (s *Server) adminListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	list, total, err := s.orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	paginated(w, list, f.Page, total)
}

func (s *Server) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := s.orders.GetAny(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	o, err := s.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) adminPurgeCartCache(w http.ResponseWriter, r *http.Request) {
	s.carts.PurgeCache(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
