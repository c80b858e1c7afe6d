package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// sessionClasses maps session sentinels to their error_class tag, checked in order.
var sessionClasses = []struct {
	err   error
	class string
}{
	{domainauth.ErrNotAuthenticated, "not_authenticated"},
	{domainauth.ErrNoRefreshToken, "no_refresh_token"},
	{domainauth.ErrUnknownAccount, domainauth.FailureInvalidCredentials.String()},
	{domainauth.ErrInvalidCredentials, domainauth.FailureInvalidCredentials.String()},
	{domainauth.ErrNetworkUnavailable, domainauth.FailureNetworkUnavailable.String()},
	{domainauth.ErrProviderFailure, domainauth.FailureProviderError.String()},
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
}

// Classify returns the error_class tag for session and credential store metrics.
// Provider failures use their kind, session sentinels and contexts their fixed class,
// and transport errors count as network_unavailable, matching what the API reports.
// Anything else is tagged with its innermost concrete type, e.g. "errors_errorstring".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var pe *domainauth.ProviderError
	if goerrors.As(err, &pe) && pe.Kind != domainauth.FailureNone {
		return pe.Kind.String()
	}
	for _, c := range sessionClasses {
		if goerrors.Is(err, c.err) {
			return c.class
		}
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		return domainauth.FailureNetworkUnavailable.String()
	}
	return typeClass(err)
}

func typeClass(err error) string {
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
