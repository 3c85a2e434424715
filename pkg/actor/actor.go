// Package actor identifies the user performing an action. Every mutating
// operation in the stock core takes the acting identity as an explicit
// parameter (requester, approver, orderer, receiver, disposer) rather than
// reading it from ambient state; this package supplies that identity from the
// request boundary.
package actor

import (
	"context"
	"fmt"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// Name is the actor's display name
	Name string `json:"name"`

	// Email is the actor's email address
	Email string `json:"email"`

	// Role is the actor's role name, consumed as a capability flag only
	Role string `json:"role,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.Email)
}

// CanManagePurchases reports whether the actor's role permits approving,
// rejecting, and ordering purchases. Role semantics come from the upstream
// identity provider; this is a capability check, not an authorization system.
func (a *Actor) CanManagePurchases() bool {
	if a == nil {
		return false
	}
	return a.Role == "admin" || a.Role == "lab_manager"
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, a)
}
