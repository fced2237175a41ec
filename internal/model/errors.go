package model

import "errors"

// Error taxonomy shared by repositories, services and transports.
// Wrap with fmt.Errorf("...: %w", ErrX) and classify with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrInternal        = errors.New("internal error")
)
