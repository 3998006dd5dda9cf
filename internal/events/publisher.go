package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const subjectPrefix = "identity"

// Publisher writes identity lifecycle events to a JetStream stream. A nil
// *Publisher is valid and drops every event, which is how the service runs
// when no NATS URL is configured.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	source string
}

func NewPublisher(natsURL, stream, source string) (*Publisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name(source))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		log.Warn().Err(err).Str("stream", stream).Msg("failed to create identity stream (may already exist)")
	}

	return &Publisher{nc: nc, js: js, source: source}, nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.nc.Close()
}

// PublishUser publishes a lifecycle event for u.
func (p *Publisher) PublishUser(ctx context.Context, kind Kind, u User) error {
	if p == nil {
		return nil
	}

	event := UserEvent{
		Metadata: p.newMetadata(u.AuthID),
		Kind:     kind,
		User:     u,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	subject := Subject(u.AuthID, kind)
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.Metadata.EventID)); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	log.Debug().Str("subject", subject).Msg("published event")
	return nil
}

func (p *Publisher) newMetadata(entityID string) EventMetadata {
	return EventMetadata{
		EventID:   uuid.NewString(),
		EntityID:  entityID,
		Timestamp: time.Now().Unix(),
		Source:    p.source,
	}
}

// Subject returns the subject an event for authID is published on.
func Subject(authID string, kind Kind) string {
	token := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(authID)
	return fmt.Sprintf("%s.user.%s.%s", subjectPrefix, token, kind)
}
