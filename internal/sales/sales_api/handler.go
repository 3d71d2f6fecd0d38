package sales_api

import (
	"context"
	"fmt"
	"net/http"

	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"
	"ms-questbooking/internal/utils"

	"github.com/go-chi/chi/v5"
)

type SalesReader interface {
	Summary(ctx context.Context, questID string) (*models.SalesSummary, error)
}

type Handler struct {
	Sales  SalesReader
	Logger *logger.Logger
}

func NewHandler(sales SalesReader, log *logger.Logger) *Handler {
	return &Handler{Sales: sales, Logger: log}
}

// RegisterRoutes expects r to be authenticated and role-checked already.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/quests/{questId}/sales", h.GetQuestSales)
}

func (h *Handler) GetQuestSales(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questId")
	summary, err := h.Sales.Summary(r.Context(), questID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetQuestSales: quest=%s: %v", questID, err))
		_ = utils.WriteJSON(w, http.StatusInternalServerError, utils.CodedErrorResponse("try_again", "Could not load sales", "try again"))
		return
	}
	if err := utils.WriteJSON(w, http.StatusOK, summary); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetQuestSales: failed to encode response: %v", err))
	}
}
