// Package health runs readiness checks against the services the server
// depends on: the store, the presence Redis and the Daily API.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// PingFunc adapts any "ping" style call into a Checker.
type PingFunc struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingChecker returns nil when ping is nil so optional dependencies can
// be passed straight to NewReadinessRunner.
func NewPingChecker(name string, ping func(ctx context.Context) error) Checker {
	if ping == nil {
		return nil
	}
	return &PingFunc{name: name, ping: ping}
}

func (p *PingFunc) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: p.name, Healthy: true}
	if err := p.ping(ctx); err != nil {
		res.Healthy = false
		res.Error = err.Error()
	}
	return res
}

type ReadinessRunner struct {
	checkers []Checker
	timeout  time.Duration
}

// NewReadinessRunner drops nil checkers. Each check gets its own timeout.
func NewReadinessRunner(timeout time.Duration, checkers ...Checker) *ReadinessRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	kept := make([]Checker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			kept = append(kept, c)
		}
	}
	return &ReadinessRunner{checkers: kept, timeout: timeout}
}

// Ready runs every check concurrently and reports whether all passed.
// Results keep the order the checkers were given in.
func (r *ReadinessRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	if r == nil {
		return true, nil
	}
	results := make([]CheckResult, len(r.checkers))

	var g errgroup.Group
	for i, c := range r.checkers {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			results[i] = c.Check(checkCtx)
			return nil
		})
	}
	_ = g.Wait()

	allHealthy := true
	for _, res := range results {
		if !res.Healthy {
			allHealthy = false
		}
	}
	return allHealthy, results
}
