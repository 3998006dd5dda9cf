// Package auth carries the verified caller identity through request contexts.
//
// A Principal is only attached by the HTTP session middleware after the
// identity provider's token has been verified. Services read it back with
// FromContext instead of accepting caller-supplied ids as proof of identity.
package auth

import "context"

type Principal struct {
	AuthID    string
	Email     string
	SessionID string // local session row bound to the browser cookie, if any
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached to ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.AuthID == "" {
		return Principal{}, false
	}
	return p, true
}
