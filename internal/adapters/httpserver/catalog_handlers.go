package httpserver

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/phenrril/kitehouse/internal/domain"
)

func productFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	f := domain.ProductFilter{Query: q.Get("search"), Page: pageFrom(r)}
	if raw := q.Get("categoryId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, domain.Validationf("invalid categoryId")
		}
		f.CategoryID = &id
	}
	return f, nil
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f.ActiveOnly = true
	list, total, err := s.products.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	paginated(w, list, f.Page, total)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.products.GetActive(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) matchVariant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Attributes domain.Attributes `json:"attributes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	v, err := s.products.MatchVariant(r.Context(), id, req.Attributes)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	f := domain.CategoryFilter{Query: r.URL.Query().Get("search"), Page: pageFrom(r)}
	list, total, err := s.products.ListCategories(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	paginated(w, list, f.Page, total)
}
