package service

import "errors"

var (
	ErrValidation       = errors.New("invalid booking request")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrOrderNotFound    = errors.New("payment order not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrCodeConflict     = errors.New("booking code conflict, retry the request")
	ErrBookingImmutable = errors.New("booking is completed and can no longer be modified")
	ErrGatewayTimeout   = errors.New("payment gateway timed out")
	ErrGateway          = errors.New("payment gateway error")
)
