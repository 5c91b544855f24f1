// Package ratelimit implements fixed-window request counting per identifier.
package ratelimit

import (
	"context"
	"math"
	"time"
)

type Policy struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

var (
	AgentPolicy = Policy{Name: "agent", MaxRequests: 30, Window: time.Minute}
	APIPolicy   = Policy{Name: "api", MaxRequests: 100, Window: time.Minute}
	AuthPolicy  = Policy{Name: "auth", MaxRequests: 5, Window: time.Minute}
)

// Key namespaces id under the policy name, e.g. "agent:42".
func (p Policy) Key(id string) string {
	return p.Name + ":" + id
}

type Result struct {
	Success   bool
	Remaining int
	ResetTime time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole
// seconds and never below one second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	secs := math.Ceil(r.ResetTime.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

// ResetUnix is the reset instant in epoch seconds, rounded up.
func (r Result) ResetUnix() int64 {
	return int64(math.Ceil(float64(r.ResetTime.UnixMilli()) / 1000))
}

type Limiter interface {
	Check(ctx context.Context, id string, policy Policy) (Result, error)
}
