package metrics

import (
	"time"

	obserrors "github.com/eduadmin/portal/internal/observability/errors"
	"github.com/eduadmin/portal/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Session lifecycle events.
const (
	EventLogin   = "login"
	EventLogout  = "logout"
	EventRefresh = "refresh"
	EventRestore = "restore"
)

// SessionMetric captures details about a session lifecycle event.
type SessionMetric struct {
	Event    string
	Result   string
	Provider string
	Reason   string
	Duration time.Duration
	Err      error
}

// EmitSession emits standardised session lifecycle metrics.
func EmitSession(sink statsd.Sink, in SessionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{"result": in.Result}
	if in.Provider != "" {
		tags["provider"] = in.Provider
	}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("session."+in.Event, 1, tags)

	if in.Duration > 0 {
		sink.Timing("session."+in.Event+".duration", in.Duration, CloneTags(tags))
	}
}

// EmitStoreFallback counts a credential store operation served by the memory tier.
func EmitStoreFallback(sink statsd.Sink, tier, op string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"tier": tier, "op": op}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
	sink.Count("credstore.fallback", 1, tags)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
