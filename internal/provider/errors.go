package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/wine-resolver/internal/resilience"
)

// ErrProviderUnavailable is matched by every error a provider call can
// return except ErrNoBudget.
var ErrProviderUnavailable = eris.New("provider unavailable")

// ErrNoBudget is returned when the call budget refused an attempt.
var ErrNoBudget = eris.New("call budget exhausted")

// Kind classifies why a provider call failed.
type Kind string

// Failure kinds.
const (
	KindNotRegistered      Kind = "not_registered"
	KindMissingCredentials Kind = "missing_credentials"
	KindCircuitOpen        Kind = "circuit_open"
	KindAuth               Kind = "auth"
	KindQuota              Kind = "quota"
	KindServer             Kind = "server"
	KindRejected           Kind = "rejected"
	KindTimeout            Kind = "timeout"
	KindCanceled           Kind = "canceled"
	KindMalformed          Kind = "malformed"
	KindNetwork            Kind = "network"
)

// ProviderError is a failed provider call.
type ProviderError struct {
	Provider string
	Kind     Kind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes every ProviderError match ErrProviderUnavailable.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// Retryable reports whether another attempt might succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindQuota, KindServer, KindTimeout:
		return true
	case KindNetwork:
		return resilience.IsTransient(e.Err)
	default:
		return false
	}
}

// Note is the short form recorded on a descriptor's outcome.
func (e *ProviderError) Note() string {
	return e.Provider + ":" + string(e.Kind)
}

// Classify wraps err as a ProviderError for provider.
func Classify(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: provider, Kind: kindOf(err), Err: err}
}

func kindOf(err error) Kind {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return KindCircuitOpen
	}
	if code, ok := resilience.StatusOf(err); ok {
		switch {
		case code == 401 || code == 403:
			return KindAuth
		case code == 429:
			return KindQuota
		case code >= 500:
			return KindServer
		default:
			return KindRejected
		}
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || strings.Contains(err.Error(), "unmarshal response") {
		return KindMalformed
	}
	return KindNetwork
}

// BreakerCounts decides whether err counts against a provider's breaker.
// Cancellation by the caller is not the provider's fault.
func BreakerCounts(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNoBudget)
}
