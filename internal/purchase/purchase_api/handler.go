package purchase_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"ms-questbooking/internal/auth"
	"ms-questbooking/internal/logger"
	"ms-questbooking/internal/models"
	"ms-questbooking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBody bounds a provider delivery; larger bodies get 413.
const maxWebhookBody = 1 << 20

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Purchases interface {
	StartPurchase(ctx context.Context, userID string, req models.HoldRequest) (*models.HoldResponse, error)
	ConfirmFromClient(ctx context.Context, userID, intentID string) (*models.Reservation, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	CancelPurchase(ctx context.Context, userID, intentID string) (*models.PurchaseStatus, error)
	Status(ctx context.Context, userID, intentID string) (*models.PurchaseStatus, error)
}

type Reservations interface {
	FindByID(ctx context.Context, reservationID string) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Reservation, error)
	ListByQuest(ctx context.Context, questID string, limit, offset int) ([]models.Reservation, error)
}

type InventoryView interface {
	Snapshot(ctx context.Context, questID string) (models.QuestInventory, error)
	ActiveHolds(ctx context.Context, questID string) ([]models.Hold, error)
}

type TicketRenderer interface {
	PNG(res models.Reservation) ([]byte, error)
}

type Handler struct {
	Purchases    Purchases
	Reservations Reservations
	Inventory    InventoryView
	Tickets      TicketRenderer
	Logger       *logger.Logger
	AdminRole    string
	// HealthCheck is optional; a nil check always reports healthy.
	HealthCheck func(ctx context.Context) error
}

type inventoryResponse struct {
	models.QuestInventory
	Free        int64         `json:"tickets_free"`
	ActiveHolds []models.Hold `json:"active_holds"`
}

// RegisterRoutes mounts the webhook and health endpoints publicly and
// everything else behind authn.
func (h *Handler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Get("/healthz", h.Health)
	r.Post("/webhooks/payment", h.PaymentWebhook)

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Route("/purchase", func(r chi.Router) {
			r.Post("/hold", h.StartPurchase)
			r.Post("/confirm", h.ConfirmPurchase)
			r.Get("/{intentId}", h.PurchaseStatus)
			r.Delete("/{intentId}", h.CancelPurchase)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Get("/{reservationId}", h.GetReservation)
			r.Get("/{reservationId}/qr", h.ReservationQR)
		})

		r.Route("/admin/quests/{questId}", func(r chi.Router) {
			r.Use(auth.RequireRole(h.adminRole()))
			r.Get("/inventory", h.QuestInventory)
			r.Get("/reservations", h.QuestReservations)
		})
	})
}

func (h *Handler) StartPurchase(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("StartPurchase: invalid body from user %s: %v", userID, err))
		h.writeError(w, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err))
		return
	}
	if req.QuestID == "" {
		h.writeError(w, fmt.Errorf("%w: questId is required", models.ErrInvalidRequest))
		return
	}

	resp, err := h.Purchases.StartPurchase(r.Context(), userID, req)
	if err != nil {
		h.Logger.Info("API", fmt.Sprintf("StartPurchase: user=%s quest=%s qty=%d: %v", userID, req.QuestID, req.Quantity, err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		h.writeError(w, fmt.Errorf("%w: intentId is required", models.ErrInvalidRequest))
		return
	}

	res, err := h.Purchases.ConfirmFromClient(r.Context(), userID, req.IntentID)
	if err != nil {
		h.Logger.Info("API", fmt.Sprintf("ConfirmPurchase: user=%s intent=%s: %v", userID, req.IntentID, err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, models.ConfirmResponse{
		ReservationID: res.ReservationID,
		QuestID:       res.QuestID,
		Quantity:      res.Quantity,
		Amount:        res.Amount,
		Currency:      res.Currency,
		CreatedAt:     res.CreatedAt,
	})
}

func (h *Handler) PurchaseStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Purchases.Status(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "intentId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CancelPurchase(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentId")
	status, err := h.Purchases.CancelPurchase(r.Context(), auth.UserID(r.Context()), intentID)
	if err != nil {
		h.Logger.Info("API", fmt.Sprintf("CancelPurchase: intent=%s: %v", intentID, err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// PaymentWebhook answers 200 for every authentic event it has durably
// processed, even when the business outcome was a rejection. Only a bad
// signature or an infrastructure failure makes the provider redeliver.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("Rejected body over %d bytes", tooLarge.Limit))
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read body: %v", err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	err = h.Purchases.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, models.ErrInvalidSignature):
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, models.ErrTransient), errors.Is(err, models.ErrGatewayUnavailable):
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Event not processed, asking for redelivery: %v", err))
		w.WriteHeader(http.StatusInternalServerError)
	default:
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("Event accepted with outcome: %v", err))
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.Reservations.ListByUser(r.Context(), auth.UserID(r.Context()), limit, offset)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListReservations: %v", err))
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, ok := h.ownedReservation(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ReservationQR(w http.ResponseWriter, r *http.Request) {
	res, ok := h.ownedReservation(w, r)
	if !ok {
		return
	}
	png, err := h.Tickets.PNG(*res)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ReservationQR: reservation=%s: %v", res.ReservationID, err))
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ReservationQR: failed to write response: %v", err))
	}
}

func (h *Handler) QuestInventory(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questId")
	snap, err := h.Inventory.Snapshot(r.Context(), questID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	holds, err := h.Inventory.ActiveHolds(r.Context(), questID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if holds == nil {
		holds = []models.Hold{}
	}
	h.writeJSON(w, http.StatusOK, inventoryResponse{QuestInventory: snap, Free: snap.Free(), ActiveHolds: holds})
}

func (h *Handler) QuestReservations(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.Reservations.ListByQuest(r.Context(), chi.URLParam(r, "questId"), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.HealthCheck != nil {
		if err := h.HealthCheck(r.Context()); err != nil {
			h.Logger.Warn("HEALTH", fmt.Sprintf("Health check failed: %v", err))
			h.writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("unhealthy", err.Error()))
			return
		}
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
}

// ownedReservation hides other users' reservations behind a 404 unless the
// caller is an admin.
func (h *Handler) ownedReservation(w http.ResponseWriter, r *http.Request) (*models.Reservation, bool) {
	res, err := h.Reservations.FindByID(r.Context(), chi.URLParam(r, "reservationId"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	if res.UserID != auth.UserID(r.Context()) && !auth.HasRole(r.Context(), h.adminRole()) {
		h.writeError(w, models.ErrReservationNotFound)
		return nil, false
	}
	return res, true
}

func (h *Handler) adminRole() string {
	if h.AdminRole == "" {
		return "admin"
	}
	return h.AdminRole
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	e := classify(err)
	if e.status == http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("Unhandled error: %v", err))
	}
	h.writeJSON(w, e.status, utils.CodedErrorResponse(e.code, e.message, e.message))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	if err := utils.WriteJSON(w, status, body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func pagination(r *http.Request) (int, int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
