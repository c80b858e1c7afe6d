package auth

import (
	"net/url"
	"strings"
)

// Outcome is the result class of an access decision.
type Outcome int

const (
	// Pending means the session restore has not settled; render a loading state, do not redirect.
	Pending Outcome = iota
	Allow
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// DenyReason explains a Deny outcome.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonNotAuthenticated
	ReasonInsufficientRole
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNotAuthenticated:
		return "not_authenticated"
	case ReasonInsufficientRole:
		return "insufficient_role"
	default:
		return "unknown"
	}
}

// Decision is what the guard returns. Reason is ReasonNone unless Outcome is Deny.
type Decision struct {
	Outcome Outcome
	Reason  DenyReason
}

var (
	DecisionAllow            = Decision{Outcome: Allow}
	DecisionPending          = Decision{Outcome: Pending}
	DecisionNotAuthenticated = Decision{Outcome: Deny, Reason: ReasonNotAuthenticated}
	DecisionInsufficientRole = Decision{Outcome: Deny, Reason: ReasonInsufficientRole}
)

// Requirement describes what a protected view needs. The zero value admits any authenticated principal.
type Requirement struct {
	Role  Role   // optional single role
	AnyOf []Role // optional role set
}

// RequireRole is shorthand for a single-role requirement.
func RequireRole(r Role) Requirement { return Requirement{Role: r} }

// RequireAnyRole is shorthand for a role-set requirement.
func RequireAnyRole(roles ...Role) Requirement { return Requirement{AnyOf: roles} }

func (q Requirement) empty() bool {
	return q.Role == "" && len(q.AnyOf) == 0
}

func (q Requirement) satisfiedBy(role Role) bool {
	if q.Role != "" && q.Role == role {
		return true
	}
	for _, r := range q.AnyOf {
		if r == role {
			return true
		}
	}
	return false
}

// Evaluate maps a session status and principal role to an access decision.
// It is total and side-effect free; Checking never yields Deny.
func Evaluate(status Status, principalRole Role, req Requirement) Decision {
	switch status {
	case StatusUninitialized, StatusChecking:
		return DecisionPending
	case StatusAuthenticated:
		if req.empty() || req.satisfiedBy(principalRole) {
			return DecisionAllow
		}
		return DecisionInsufficientRole
	default:
		return DecisionNotAuthenticated
	}
}

const (
	LoginPath     = "/login"
	ForbiddenPath = "/forbidden"
)

// RedirectTarget returns where a browser should be sent for a decision, or "" when no redirect applies.
// The original path is carried as redirect_uri and is always reduced to a safe relative path.
func RedirectTarget(d Decision, requestPath string) string {
	if d.Outcome != Deny {
		return ""
	}
	switch d.Reason {
	case ReasonNotAuthenticated:
		q := url.Values{}
		q.Set("redirect_uri", SafeRedirectPath(requestPath))
		return LoginPath + "?" + q.Encode()
	case ReasonInsufficientRole:
		return ForbiddenPath
	default:
		return ""
	}
}

// SafeRedirectPath keeps redirects within the app: only relative paths starting with a single "/".
func SafeRedirectPath(candidate string) string {
	if candidate == "" || strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, `/\`) {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}
