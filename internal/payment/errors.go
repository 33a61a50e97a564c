package payment

import "errors"

var (
	ErrNotFound       = errors.New("payment not found")
	ErrInvalidStatus  = errors.New("invalid target status")
	ErrInvalidRequest = errors.New("invalid payment request")

	// Infrastructure failures. Callers map these to server errors.
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrSerialization     = errors.New("serialization failure")
)
