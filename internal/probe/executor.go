package probe

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
)

const maxPredicateBody = 1 << 20

// Dependencies allow test overrides for HTTP transport and logging.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Executor performs one reachability determination across a fixed set of
// targets. The target list is bound at construction; reconfiguration swaps
// the whole executor.
type Executor struct {
	targets []Target
	client  *http.Client
	logger  *log.Logger
}

// NewExecutor validates the targets and builds an executor bound to them.
func NewExecutor(targets []Target, deps Dependencies) (*Executor, error) {
	for i, tgt := range targets {
		if err := tgt.Validate(); err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
	}
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Executor{
		targets: CloneTargets(targets),
		client:  client,
		logger:  logger,
	}, nil
}

// Probe issues one request per target concurrently and reports whether any
// response satisfied its predicate. First success wins: the remaining
// in-flight requests are cancelled as soon as one target proves reachable.
// An empty target list means reachability cannot be verified and reports
// false without issuing any request.
func (e *Executor) Probe(ctx context.Context) bool {
	if len(e.targets) == 0 {
		return false
	}

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan bool, len(e.targets))
	for _, tgt := range e.targets {
		go func(tgt Target) {
			results <- e.checkTarget(fanCtx, tgt)
		}(tgt)
	}

	for range e.targets {
		select {
		case ok := <-results:
			if ok {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
	return false
}

// checkTarget runs a single request bounded by the target's own timeout.
// Transport failures and predicate panics both count as "not reachable via
// this target"; they never propagate.
func (e *Executor) checkTarget(ctx context.Context, tgt Target) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("target %s: predicate panic: %v", tgt.URL, r)
			ok = false
		}
	}()

	reqCtx, cancel := context.WithTimeout(ctx, tgt.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, tgt.URL, nil)
	if err != nil {
		return false
	}
	for key, value := range tgt.Headers {
		req.Header.Set(key, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPredicateBody))
	if err != nil {
		// The status line already arrived; let the predicate decide on it.
		body = nil
	}

	predicate := tgt.Predicate
	if predicate == nil {
		predicate = Default2xx
	}
	return predicate(Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	})
}
