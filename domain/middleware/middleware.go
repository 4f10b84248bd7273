// Package middleware provides composable guards around server actions.
//
// A server action is a named unit of request work (sign up, fetch profile)
// invoked on behalf of a caller. Guards such as rate limiting and result
// caching wrap the action's Handler without the action knowing.
package middleware

import (
	"context"
	"encoding/json"
	"time"
)

// ActionContext describes one invocation of a server action.
type ActionContext struct {
	// Action is the action name, e.g. "auth.signup".
	Action string
	// Caller identifies who invoked the action: a user ID or client address.
	Caller string
	// Input is the action's JSON input.
	Input json.RawMessage
	// Cacheable marks actions whose result depends only on Action and Input.
	Cacheable bool
	// Metadata carries request-scoped values such as a route or tenant.
	Metadata map[string]string
}

// Result is an action's output.
type Result struct {
	// Output is the JSON output.
	Output json.RawMessage `json:"output"`
	// Cached reports that the output was served from the cache.
	Cached bool `json:"-"`
	// Duration is the handler's execution time.
	Duration time.Duration `json:"-"`
}

// Handler executes an action.
type Handler func(ctx context.Context, action *ActionContext) (Result, error)

// Middleware wraps a Handler with additional behavior. It may run code
// before or after next, short-circuit by not calling next, or transform
// the result.
type Middleware func(next Handler) Handler

// Chain composes middleware so that Chain(A, B, C)(h) runs A -> B -> C -> h.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		handler := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}

// Noop returns a middleware that passes through.
func Noop() Middleware {
	return func(next Handler) Handler {
		return next
	}
}
