package auth

import (
	"errors"
	"fmt"
)

// FailureKind tags why a login or refresh did not succeed.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureInvalidCredentials
	FailureNetworkUnavailable
	FailureProviderError
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureInvalidCredentials:
		return "invalid_credentials"
	case FailureNetworkUnavailable:
		return "network_unavailable"
	case FailureProviderError:
		return "provider_error"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrProviderFailure    = errors.New("provider error")

	// ErrUnknownAccount is a local verifier miss: the account is not in the allow-list.
	ErrUnknownAccount = errors.New("unknown account")
	// ErrNoRefreshToken is returned when a refresh is requested without a stored refresh credential.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrNotAuthenticated is returned by operations that need an active session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// ProviderError is the typed failure produced by AuthProvider implementations.
type ProviderError struct {
	Kind  FailureKind
	Op    string
	Cause error
}

// NewProviderError builds a ProviderError for op.
func NewProviderError(kind FailureKind, op string, cause error) *ProviderError {
	return &ProviderError{Kind: kind, Op: op, Cause: cause}
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is / errors.As.
func (e *ProviderError) Unwrap() []error {
	out := make([]error, 0, 2)
	if s := sentinelFor(e.Kind); s != nil {
		out = append(out, s)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

func sentinelFor(k FailureKind) error {
	switch k {
	case FailureInvalidCredentials:
		return ErrInvalidCredentials
	case FailureNetworkUnavailable:
		return ErrNetworkUnavailable
	case FailureProviderError:
		return ErrProviderFailure
	default:
		return nil
	}
}

// KindOf maps any error to a FailureKind. Unrecognised errors are provider errors.
func KindOf(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnknownAccount):
		return FailureInvalidCredentials
	case errors.Is(err, ErrNetworkUnavailable):
		return FailureNetworkUnavailable
	default:
		return FailureProviderError
	}
}
