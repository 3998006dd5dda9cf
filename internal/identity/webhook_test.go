package identity_test

import (
	"testing"
	"time"

	"pcstyle-auth/internal/identity"
	"pcstyle-auth/internal/identity/identitytest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookVerifier(t *testing.T) {
	payload := []byte(`{"event":"user.created","data":{"id":"user_1"}}`)
	now := time.Now()
	header := identitytest.SignWebhook(payload, "secret", now)
	verifier := identity.NewWebhookVerifier("secret", 5*time.Minute)

	assert.NoError(t, verifier.Verify(payload, header))
	assert.ErrorIs(t, identity.NewWebhookVerifier("other", 5*time.Minute).Verify(payload, header), identity.ErrInvalidSignature)
	assert.ErrorIs(t, verifier.Verify([]byte(`{}`), header), identity.ErrInvalidSignature)
	assert.ErrorIs(t, verifier.Verify(payload, identitytest.SignWebhook(payload, "secret", now.Add(-10*time.Minute))), identity.ErrInvalidSignature)
	assert.ErrorIs(t, verifier.Verify(payload, "v1=abc"), identity.ErrInvalidSignature)
	assert.ErrorIs(t, verifier.Verify(payload, ""), identity.ErrInvalidSignature)
}

func TestParseEventSnakeCase(t *testing.T) {
	ev, err := identity.ParseEvent([]byte(`{
		"id": "event_1",
		"event": "user.updated",
		"data": {"id": "user_1", "email": "a@b.dev", "first_name": "Ada", "last_name": null, "profile_picture_url": "https://img"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, identity.EventUserUpdated, ev.Kind)
	assert.Equal(t, "user_1", ev.User.ID)
	require.NotNil(t, ev.User.DisplayName())
	assert.Equal(t, "Ada", *ev.User.DisplayName())
	assert.Equal(t, "https://img", *ev.User.AvatarURL())
}

func TestParseEventCamelCase(t *testing.T) {
	ev, err := identity.ParseEvent([]byte(`{"type":"user.created","data":{"id":"user_2","email":"b@b.dev","firstName":" ","lastName":"  "}}`))
	require.NoError(t, err)

	assert.Equal(t, identity.EventUserCreated, ev.Kind)
	assert.Nil(t, ev.User.DisplayName())
	assert.Nil(t, ev.User.AvatarURL())
}

func TestParseEventUnknownKind(t *testing.T) {
	ev, err := identity.ParseEvent([]byte(`{"event":"organization.created","data":{"id":"org_1"}}`))
	require.NoError(t, err)
	assert.False(t, ev.Kind.Known())
}

func TestParseEventRejectsBadPayload(t *testing.T) {
	_, err := identity.ParseEvent([]byte(`not json`))
	assert.ErrorIs(t, err, identity.ErrInvalidPayload)

	_, err = identity.ParseEvent([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, identity.ErrInvalidPayload)

	_, err = identity.ParseEvent([]byte(`{"event":"user.deleted","data":{}}`))
	assert.ErrorIs(t, err, identity.ErrInvalidPayload)
}
