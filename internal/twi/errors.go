package twi

import (
	"errors"
	"fmt"
)

var (
	ErrNoBus         = errors.New("no bus attached")
	ErrNoLine        = errors.New("no interrupt line attached")
	ErrNoResolver    = errors.New("no resolver")
	ErrRegisterWidth = errors.New("unsupported register width")
)

// ConfigurationError is a wiring mistake detected while the controller is
// being built. It is never produced at transaction time.
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("twi: %s: configuration error: %s", e.Component, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
