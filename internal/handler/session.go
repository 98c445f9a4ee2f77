package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
)

// ListProducts returns the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.fail(w, r, errors.Wrap(err, "list products"))
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeProducts(e, products)
	writeJSON(w, http.StatusOK, e)
}

// GetStock returns the stock counters of one catalog product.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, err := h.catalog.Find(r.Context(), code); err != nil {
		h.fail(w, r, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeStock(e, code, h.stock.StockLevel(code))
	writeJSON(w, http.StatusOK, e)
}

// OpenSession starts a new checkout session.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	s := h.opener.Open(r.Context())
	h.sessions.Put(s)

	h.withSession(w, r, s.ID(), http.StatusCreated, nil)
}

// GetSession returns a session with its priced basket. The optional currency
// query parameter adds the total converted into that currency.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, r.PathValue("id"), http.StatusOK, nil)
}

// ScanItem adds one unit of the product named in the body to the session.
func (h *Handler) ScanItem(w http.ResponseWriter, r *http.Request) {
	code, err := h.decodeScan(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.withSession(w, r, r.PathValue("id"), http.StatusOK, func(s *checkout.Session) error {
		return s.Scan(r.Context(), code)
	})
}

// RemoveItem drops one unit of a product from the session.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	h.withSession(w, r, r.PathValue("id"), http.StatusOK, func(s *checkout.Session) error {
		removed, err := s.Remove(r.Context(), code)
		if err != nil {
			return err
		}
		if !removed {
			return errors.Wrap(errItemNotInBasket, code)
		}
		return nil
	})
}

// ProcessSession commits the session.
func (h *Handler) ProcessSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, r.PathValue("id"), http.StatusOK, func(s *checkout.Session) error {
		return s.Process(r.Context())
	})
}

// CancelSession releases the session's reservations.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, r.PathValue("id"), http.StatusOK, func(s *checkout.Session) error {
		return s.Cancel(r.Context())
	})
}

// MetricsSummary returns the checkout metrics report.
func (h *Handler) MetricsSummary(w http.ResponseWriter, _ *http.Request) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeReport(e, h.reports.Summary(h.topN))
	writeJSON(w, http.StatusOK, e)
}

// withSession runs op (if any) and snapshots the session under its lock, then
// writes the snapshot with the given status. A requested currency that cannot
// be quoted fails the request before op runs.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, id string, status int, op func(*checkout.Session) error) {
	target := r.URL.Query().Get("currency")

	var view sessionView
	err := h.sessions.Do(id, func(s *checkout.Session) error {
		if target != "" {
			if _, err := s.TotalIn(target); err != nil {
				return err
			}
		}
		if op != nil {
			if err := op(s); err != nil {
				return err
			}
		}
		return snapshot(s, target, &view)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encodeSession(e, view)
	writeJSON(w, status, e)
}

func snapshot(s *checkout.Session, target string, v *sessionView) error {
	summary, err := s.Summary()
	if err != nil {
		return err
	}
	*v = sessionView{
		ID:      s.ID(),
		Status:  s.Status(),
		Items:   s.Items(),
		Summary: summary,
	}
	if target != "" {
		converted, err := s.TotalIn(target)
		if err != nil {
			return err
		}
		v.Converted = &converted
	}
	return nil
}

func (h *Handler) decodeScan(w http.ResponseWriter, r *http.Request) (string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		return "", errors.Wrap(errBadRequest, "read body")
	}

	var code string
	if err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		v, err := d.Str()
		code = v
		return err
	}); err != nil {
		return "", errors.Wrap(errBadRequest, "invalid JSON body")
	}
	if code == "" {
		return "", errors.Wrap(errBadRequest, "code is required")
	}
	return code, nil
}
