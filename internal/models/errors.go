package models

import (
	"errors"
	"fmt"
)

// Machine-readable error codes surfaced by the control API.
const (
	CodeConfigError          = "CONFIG_ERROR"
	CodeGatewayError         = "GATEWAY_ERROR"
	CodeOrderRejected        = "ORDER_REJECTED"
	CodeInsufficientPosition = "INSUFFICIENT_POSITION"
	CodeRiskDenied           = "RISK_DENIED"
)

// ConfigError reports invalid grid or DCA parameters. It is fatal at
// symbol start and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid config: %s", e.Reason) }

// NewConfigError builds a ConfigError with a formatted reason.
func NewConfigError(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// GatewayError wraps a transient exchange or network failure. Callers may
// retry with backoff.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("gateway %s: %v", e.Op, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

// RejectedError reports an exchange-side order rejection (e.g.
// insufficient balance). Terminal for the intent; the level returns to
// empty.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return fmt.Sprintf("order rejected: %s", e.Reason) }

// InsufficientPositionError reports a sell fill larger than the held
// quantity. This is a ledger invariant violation and halts the affected
// symbol engine.
type InsufficientPositionError struct {
	Have float64
	Want float64
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("insufficient position: have %.8f, sell %.8f", e.Have, e.Want)
}

// RiskDeniedError is a risk guard veto. Logged, never retried; the intent
// is simply dropped.
type RiskDeniedError struct {
	Reason string
}

func (e *RiskDeniedError) Error() string { return fmt.Sprintf("risk denied: %s", e.Reason) }

// ErrorCode maps an error to its API code, or "" when the error carries
// no taxonomy type.
func ErrorCode(err error) string {
	var (
		cfg  *ConfigError
		gw   *GatewayError
		rej  *RejectedError
		pos  *InsufficientPositionError
		risk *RiskDeniedError
	)
	switch {
	case errors.As(err, &cfg):
		return CodeConfigError
	case errors.As(err, &gw):
		return CodeGatewayError
	case errors.As(err, &rej):
		return CodeOrderRejected
	case errors.As(err, &pos):
		return CodeInsufficientPosition
	case errors.As(err, &risk):
		return CodeRiskDenied
	}
	return ""
}
