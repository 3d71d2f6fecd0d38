package models

import "errors"

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrQuestNotFound         = errors.New("quest not found")
	ErrHoldNotFound          = errors.New("hold not found")
	ErrHoldExpired           = errors.New("your reservation window expired, please retry")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrGatewayRejected       = errors.New("payment gateway rejected the request")
	ErrIntentNotFound        = errors.New("payment intent not found")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrPaymentPending        = errors.New("payment not yet confirmed")
	ErrPaymentFailed         = errors.New("payment failed")
	ErrMalformedEvent        = errors.New("malformed payment event")
	ErrTransient             = errors.New("temporary failure, try again")
)

// TransientError marks an infrastructure failure that is worth retrying.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTransient, e.Err}
}

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}
