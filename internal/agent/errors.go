package agent

import (
	"fmt"
	"time"
)

type ErrorKind int

const (
	Unauthorized ErrorKind = iota + 1
	RateLimited
	BadInput
	Internal
)

func (k ErrorKind) String() string {
	switch k {
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	case BadInput:
		return "bad_input"
	case Internal:
		return "internal"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

const (
	MsgUnauthorized = "Unauthorized"
	MsgRateLimited  = "Rate limit exceeded. Please try again later."
	MsgInternal     = "Internal server error"
	// MsgRoundsExhausted ends a turn whose tool loop did not converge.
	MsgRoundsExhausted = "I couldn't finish that request. Please try rephrasing it or break it into smaller steps."
)

// TurnError is returned by Engine.HandleTurn. Message is safe to show to
// the user; Err holds the cause for logs.
type TurnError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *TurnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TurnError) Unwrap() error { return e.Err }

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (e *TurnError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

func internalError(err error) *TurnError {
	return &TurnError{Kind: Internal, Message: MsgInternal, Err: err}
}
