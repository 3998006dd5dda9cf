package authclient

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// State is a snapshot of a Watcher.
type State struct {
	User    *User
	Loading bool
	Err     error
}

// Watcher keeps the signed-in user of one browser session current, for
// long-lived processes that act on behalf of that browser.
type Watcher struct {
	client  *Client
	request func() *http.Request

	mu    sync.RWMutex
	state State
}

// NewWatcher returns a watcher that replays the cookies of the request built
// by request on every refresh. request may return nil.
func (c *Client) NewWatcher(request func() *http.Request) *Watcher {
	return &Watcher{
		client:  c,
		request: request,
		state:   State{Loading: true},
	}
}

func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Refresh fetches the user once and updates the state.
func (w *Watcher) Refresh(ctx context.Context) State {
	w.mu.Lock()
	w.state.Loading = true
	w.mu.Unlock()

	var r *http.Request
	if w.request != nil {
		r = w.request()
	}
	user, err := w.client.CurrentUser(ctx, r)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.state = State{User: w.state.User, Err: err}
	} else {
		w.state = State{User: user}
	}
	return w.state
}

// Run refreshes immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	w.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}
