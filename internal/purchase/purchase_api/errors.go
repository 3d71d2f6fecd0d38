package purchase_api

import (
	"errors"
	"net/http"

	"ms-questbooking/internal/models"
)

type apiError struct {
	status  int
	code    string
	message string
}

// classify maps domain errors to HTTP status, a stable code and a message
// that is safe to show the caller.
func classify(err error) apiError {
	switch {
	case errors.Is(err, models.ErrInvalidQuantity), errors.Is(err, models.ErrInvalidRequest):
		return apiError{http.StatusBadRequest, "invalid_request", err.Error()}
	case errors.Is(err, models.ErrQuestNotFound):
		return apiError{http.StatusNotFound, "quest_not_found", "Quest not found"}
	case errors.Is(err, models.ErrIntentNotFound):
		return apiError{http.StatusNotFound, "intent_not_found", "Payment intent not found"}
	case errors.Is(err, models.ErrReservationNotFound):
		return apiError{http.StatusNotFound, "reservation_not_found", "Reservation not found"}
	case errors.Is(err, models.ErrInsufficientInventory):
		return apiError{http.StatusConflict, "insufficient_inventory", "Not enough tickets left"}
	case errors.Is(err, models.ErrHoldExpired):
		return apiError{http.StatusConflict, "hold_expired", models.ErrHoldExpired.Error()}
	case errors.Is(err, models.ErrPaymentPending):
		return apiError{http.StatusAccepted, "payment_pending", "Payment is still being processed"}
	case errors.Is(err, models.ErrPaymentFailed):
		return apiError{http.StatusPaymentRequired, "payment_failed", "Payment failed"}
	case errors.Is(err, models.ErrGatewayUnavailable):
		return apiError{http.StatusServiceUnavailable, "gateway_unavailable", "Payment provider unavailable, try again"}
	case errors.Is(err, models.ErrGatewayRejected):
		return apiError{http.StatusBadGateway, "gateway_rejected", "Payment provider rejected the request"}
	default:
		return apiError{http.StatusInternalServerError, "try_again", "Something went wrong, try again"}
	}
}
