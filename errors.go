package tiercachefx

import "errors"

var (
	// ErrInvalidFactoryConfig indicates a store URL the factory cannot serve.
	ErrInvalidFactoryConfig = errors.New("invalid factory config")
	// ErrInvalidConfig indicates a configuration that fails validation.
	ErrInvalidConfig = errors.New("invalid config")
)
