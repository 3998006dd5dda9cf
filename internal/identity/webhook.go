package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/workos/workos-go/v4/pkg/webhooks"
)

// SignatureHeader carries "t=<unix ms>, v1=<hex hmac>".
const SignatureHeader = "WorkOS-Signature"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// EventKind is the closed set of provider events the sync layer understands.
type EventKind string

const (
	EventUserCreated EventKind = "user.created"
	EventUserUpdated EventKind = "user.updated"
	EventUserDeleted EventKind = "user.deleted"
)

// Known reports whether k is handled by the sync layer.
func (k EventKind) Known() bool {
	switch k {
	case EventUserCreated, EventUserUpdated, EventUserDeleted:
		return true
	}
	return false
}

type Event struct {
	ID   string
	Kind EventKind
	User User
}

// WebhookVerifier checks WorkOS-Signature headers against the shared secret.
type WebhookVerifier struct {
	client *webhooks.Client
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	client := webhooks.NewClient(secret)
	if tolerance > 0 {
		client.SetTolerance(tolerance)
	}
	return &WebhookVerifier{client: client}
}

// Verify returns ErrInvalidSignature unless header signs payload within the
// tolerance window.
func (v *WebhookVerifier) Verify(payload []byte, header string) error {
	if !strings.Contains(header, "t=") || !strings.Contains(header, ",") {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}
	if _, err := v.client.ValidatePayload(header, string(payload)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

type envelope struct {
	ID    string    `json:"id"`
	Event string    `json:"event"`
	Type  string    `json:"type"`
	Data  eventData `json:"data"`
}

// eventData accepts the provider's snake_case fields and the camelCase shape
// used by AuthKit-style relays.
type eventData struct {
	ID                     string  `json:"id"`
	Email                  string  `json:"email"`
	FirstName              *string `json:"first_name"`
	LastName               *string `json:"last_name"`
	ProfilePictureURL      *string `json:"profile_picture_url"`
	FirstNameCamel         *string `json:"firstName"`
	LastNameCamel          *string `json:"lastName"`
	ProfilePictureURLCamel *string `json:"profilePictureUrl"`
}

// ParseEvent decodes a webhook body. Unknown event kinds are returned as-is so
// the caller can acknowledge them.
func ParseEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	kind := env.Event
	if kind == "" {
		kind = env.Type
	}
	if kind == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrInvalidPayload)
	}

	ev := Event{ID: env.ID, Kind: EventKind(kind)}
	if !ev.Kind.Known() {
		return ev, nil
	}
	if env.Data.ID == "" {
		return Event{}, fmt.Errorf("%w: missing user id", ErrInvalidPayload)
	}

	d := env.Data
	ev.User = User{
		ID:                d.ID,
		Email:             d.Email,
		FirstName:         firstNonNil(d.FirstName, d.FirstNameCamel),
		LastName:          firstNonNil(d.LastName, d.LastNameCamel),
		ProfilePictureURL: firstNonNil(d.ProfilePictureURL, d.ProfilePictureURLCamel),
	}
	return ev, nil
}

func firstNonNil(a, b *string) *string {
	if a != nil {
		return a
	}
	return b
}
