package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sendrec/chaptersync/internal/cart"
	"github.com/sendrec/chaptersync/internal/chapter"
	"github.com/sendrec/chaptersync/internal/httputil"
)

type itemResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

func (s *Server) itemResponses(ctx context.Context, items []chapter.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse{
			ID:          it.ID,
			Description: it.Description,
			Image:       s.imageAddress(ctx, it.Image),
		})
	}
	return out
}

// imageAddress returns a browser-loadable address for a catalog image, or
// "" when it cannot be resolved.
func (s *Server) imageAddress(ctx context.Context, image string) string {
	if image == "" {
		return ""
	}
	if s.images == nil {
		if strings.HasPrefix(image, chapter.ObjectPrefix) {
			return ""
		}
		return image
	}
	address, err := s.images.Resolve(ctx, image)
	if err != nil {
		slog.Warn("cart: image unavailable", "image", image, "error", err)
		return ""
	}
	return address
}

type cartResponse struct {
	Summary cart.Summary   `json:"summary"`
	Entries []itemResponse `json:"entries"`
}

func (s *Server) cartResponse(ctx context.Context, c *cart.Cart) cartResponse {
	return cartResponse{
		Summary: c.Summary(),
		Entries: s.itemResponses(ctx, c.Entries()),
	}
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	httputil.WriteJSON(w, http.StatusOK, s.cartResponse(r.Context(), sess.Cart))
}

type toggleResponse struct {
	ID       string       `json:"id"`
	Selected bool         `json:"selected"`
	Summary  cart.Summary `json:"summary"`
}

func (s *Server) handleToggleItem(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	id := chi.URLParam(r, "id")

	selected, err := sess.Cart.Toggle(id)
	if err != nil {
		if errors.Is(err, cart.ErrUnknownItem) {
			httputil.WriteError(w, http.StatusNotFound, "item not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toggleResponse{ID: id, Selected: selected, Summary: sess.Cart.Summary()})
}

type stepRequest struct {
	Step cart.Step `json:"step"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())

	var req stepRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := sess.Cart.GoToStep(req.Step)
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		httputil.WriteError(w, http.StatusConflict, "select at least one item first")
		return
	case errors.Is(err, cart.ErrInvalidStep):
		httputil.WriteError(w, http.StatusBadRequest, "unknown step")
		return
	case err != nil:
		httputil.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.cartResponse(r.Context(), sess.Cart))
}

type checkoutRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if s.orders == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "checkout is not available")
		return
	}

	var req checkoutRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := s.orders.Submit(r.Context(), sess.ID, sess.Cart, strings.TrimSpace(req.Name), strings.TrimSpace(req.Address))
	if err != nil {
		var verr *cart.ValidationError
		switch {
		case errors.As(err, &verr):
			httputil.WriteError(w, http.StatusBadRequest, verr.Message)
		case errors.Is(err, cart.ErrEmptyCart):
			httputil.WriteError(w, http.StatusConflict, "cart is empty")
		default:
			slog.Error("checkout: submit failed", "session_id", sess.ID, "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "could not submit order")
		}
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}
