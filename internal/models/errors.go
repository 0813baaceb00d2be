package models

import "errors"

// Domain errors. Handlers map them to HTTP status codes with errors.Is.
var (
	ErrCapacityExceeded          = errors.New("capacity exceeded for requested seats")
	ErrHoldExpired               = errors.New("hold has expired")
	ErrHoldNotFound              = errors.New("hold not found")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrInvalidCode               = errors.New("invalid redemption code")
	ErrAlreadyRedeemed           = errors.New("ticket already redeemed")
	ErrRateConfigInvalid         = errors.New("retention rate configuration invalid")
	ErrInvalidTransition         = errors.New("invalid booking status transition")
	ErrBookingNotFound           = errors.New("booking not found")
	ErrTourNotFound              = errors.New("tour not found")
	ErrTourInactive              = errors.New("tour is not active")
	ErrInvalidSeats              = errors.New("seat count must be positive")
	ErrCodeSpaceExhausted        = errors.New("could not issue a unique redemption code")
	ErrCodeCollision             = errors.New("redemption code already issued")
	ErrInvalidRequest            = errors.New("invalid request")
)
