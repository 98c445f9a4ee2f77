package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/currency"
	"github.com/xenking/kart-checkout/internal/domain/inventory"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/storage/memory"
)

var (
	errItemNotInBasket = errors.New("item not in basket")
	errBadRequest      = errors.New("bad request")
)

// mapError converts domain errors to an HTTP status and client message.
// Unrecognised errors map to 500 with a generic message.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, memory.ErrSessionNotFound), errors.Is(err, errItemNotInBasket):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, inventory.ErrInsufficientStock), errors.Is(err, checkout.ErrAlreadyFinalized):
		return http.StatusConflict, err.Error()
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, currency.ErrUnsupportedCurrency),
		errors.Is(err, checkout.ErrNoConverter),
		errors.Is(err, money.ErrCurrencyMismatch):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := mapError(err)
	if code == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, code, msg)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, code, e)
}

func writeJSON(w http.ResponseWriter, code int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
