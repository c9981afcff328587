package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phenrril/kitehouse/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func unauthorized(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
}

// fail turns a usecase error into a response. Payment provider and signature
// failures never expose their cause to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var se *domain.StockError
	switch {
	case errors.As(err, &se):
		writeError(w, http.StatusBadRequest, "insufficient_stock", err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrSignatureMismatch):
		writeError(w, http.StatusBadRequest, "signature_mismatch", "invalid payment signature")
	case errors.Is(err, domain.ErrGatewayUnavailable):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("payment gateway")
		writeError(w, http.StatusInternalServerError, "payment_failed", "payment failed, try again")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return domain.Validationf("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

func pageFrom(r *http.Request) domain.Page {
	q := r.URL.Query()
	return domain.ParsePage(q.Get("page"), q.Get("limit"))
}

func paginated[T any](w http.ResponseWriter, list []T, page domain.Page, total int64) {
	if list == nil {
		list = []T{}
	}
	writeJSON(w, http.StatusOK, domain.Paginated[T]{Data: list, Pagination: domain.NewPageMeta(page, total)})
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
