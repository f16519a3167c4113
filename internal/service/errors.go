package service

import "errors"

// Error taxonomy shared by the escalation and knowledge services. Handlers
// dispatch on these with errors.Is; anything else is treated as a storage
// failure and surfaces as a 500.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("operation not allowed in current state")
)
