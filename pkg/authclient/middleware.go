package authclient

import (
	"context"
	"net/http"
)

type userKey struct{}

// UserFromContext returns the user stored by Middleware.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}

// Middleware lets public paths through and redirects every other signed-out
// request to the sign-in page. The signed-in user is stored in the request
// context. A failed lookup answers 502 rather than redirecting.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if MatchPath(c.publicPaths, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		user, err := c.CurrentUser(r.Context(), r)
		if err != nil {
			http.Error(w, "authentication check failed", http.StatusBadGateway)
			return
		}
		if user == nil {
			c.Login(w, r, requestURL(r))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// requestURL rebuilds the absolute URL the browser asked for.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
