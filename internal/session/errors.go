package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBusy              = errors.New("session busy")
	ErrConnection        = errors.New("device connection failed")
	ErrGatewayOperation  = errors.New("device operation failed")
	ErrCanceled          = errors.New("job canceled")
	ErrDuplicateIdentity = errors.New("identity already exists")
	ErrUnknownIdentity   = errors.New("identity not found")
	ErrNoMatch           = errors.New("no matching identity")
	ErrUnsupported       = errors.New("operation not supported")
	ErrNotRunning        = errors.New("orchestrator not running")
	ErrInvalidRequest    = errors.New("invalid request")
)

// GatewayError carries the status a device operation reported.
type GatewayError struct {
	Op     string
	Status string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrGatewayOperation, e.Op, e.Status)
}

// Unwrap lets errors.Is match ErrGatewayOperation.
func (e *GatewayError) Unwrap() error { return ErrGatewayOperation }

// ErrorKind classifies the error for logs.
func (e *GatewayError) ErrorKind() string { return "gateway" }

// Wrap tags err with marker and the job context so callers can classify it
// with errors.Is.
func Wrap(marker error, kind Kind, operation, message string, err error) error {
	detail := buildDetail(string(kind), operation, message)
	if marker == nil {
		marker = ErrGatewayOperation
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ResultFor maps a job error to the result recorded in its outcome.
func ResultFor(err error) Result {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, ErrCanceled):
		return ResultCanceled
	case errors.Is(err, ErrConnection):
		return ResultConnectionError
	case errors.Is(err, ErrDuplicateIdentity):
		return ResultDuplicateIdentity
	default:
		return ResultFailure
	}
}

func buildDetail(kind, operation, message string) string {
	parts := make([]string, 0, 3)
	if kind = strings.TrimSpace(kind); kind != "" {
		parts = append(parts, kind)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "session failure"
	}
	return strings.Join(parts, ": ")
}
