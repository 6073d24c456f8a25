package probe

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Response carries the parts of an HTTP response a success predicate may
// inspect. Body is truncated to maxPredicateBody bytes.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Predicate decides whether a target's response proves reachability.
type Predicate func(Response) bool

// Default2xx is the predicate applied when a target supplies none.
func Default2xx(resp Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Target is one checkable endpoint. Targets are immutable once constructed;
// a target list is swapped as a unit, never mutated in place.
type Target struct {
	URL       string
	Timeout   time.Duration
	Headers   map[string]string
	Predicate Predicate
}

// Validate reports configuration problems that must surface at construction
// time rather than being absorbed into an unreachable result.
func (t Target) Validate() error {
	raw := strings.TrimSpace(t.URL)
	if raw == "" {
		return fmt.Errorf("target URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse target URL %q: %w", t.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target URL %q: scheme must be http or https", t.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("target URL %q: host is required", t.URL)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("target %q: timeout must be positive", t.URL)
	}
	return nil
}

// CloneTargets returns a shallow copy of the target list so callers cannot
// mutate a list already handed to an executor.
func CloneTargets(targets []Target) []Target {
	if len(targets) == 0 {
		return nil
	}
	out := make([]Target, len(targets))
	copy(out, targets)
	return out
}
