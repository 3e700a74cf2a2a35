package moneybox

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/urcash/urcash/internal/platform/httpx"
)

// Lister lists money boxes.
type Lister interface {
	List(ctx context.Context) ([]MoneyBox, error)
}

// Handler exposes GET /money-boxes.
type Handler struct {
	logger *slog.Logger
	repo   Lister
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, repo Lister) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers money box routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list money boxes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
