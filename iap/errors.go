package iap

import (
	"github.com/pkg/errors"
)

var (
	ErrService            = errors.New("storefront service error")
	ErrProductNotFound    = errors.New("product not found")
	ErrVerificationFailed = errors.New("unverified transaction")
	ErrUserCancelled      = errors.New("user cancelled")
	ErrPending            = errors.New("purchase pending")
	ErrUnknownResult      = errors.New("unknown result")
)

// ServiceError is returned when a call into the storefront itself failed.
type ServiceError struct {
	Op  string
	Err error
}

func NewServiceError(op string, err error) error {
	return &ServiceError{Op: op, Err: err}
}

func (e *ServiceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}
