// Package pubsub carries the engine's inbound and outbound events over
// Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"

	"travel-matching-engine/events"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

type Publisher struct {
	projectID string
	topicName string
	credsFile string
	client    *gpubsub.Client
	topic     *gpubsub.Topic
}

func NewPublisher(projectID, topicName, credsFile string) *Publisher {
	return &Publisher{projectID: projectID, topicName: topicName, credsFile: credsFile}
}

func (p *Publisher) Publish(ctx context.Context, evt events.Event) error {
	if p.client == nil {
		var (
			client *gpubsub.Client
			err    error
		)
		if p.credsFile != "" {
			log.Debug().Str("projectID", p.projectID).Str("topic", p.topicName).Str("credsFile", p.credsFile).Msg("initializing pubsub publisher with explicit credentials")
			client, err = gpubsub.NewClient(ctx, p.projectID, option.WithCredentialsFile(p.credsFile))
		} else {
			log.Debug().Str("projectID", p.projectID).Str("topic", p.topicName).Msg("initializing pubsub publisher with default credentials")
			client, err = gpubsub.NewClient(ctx, p.projectID)
		}
		if err != nil {
			log.Error().Err(err).Str("projectID", p.projectID).Str("topic", p.topicName).Msg("failed to create pubsub client for publisher")
			return err
		}
		p.client = client
		p.topic = client.Topic(p.topicName)
		log.Info().Str("topic", p.topicName).Msg("pubsub publisher initialized")
	}

	env, err := events.Wrap(evt)
	if err != nil {
		log.Error().Err(err).Str("eventType", string(evt.EventType())).Msg("failed to wrap event")
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("eventType", string(evt.EventType())).Msg("failed to marshal event envelope")
		return err
	}
	// Publish and wait for server ack. Attributes let consumers filter
	// per-request streams without decoding the payload.
	r := p.topic.Publish(ctx, &gpubsub.Message{
		Data: b,
		Attributes: map[string]string{
			"eventType": string(evt.EventType()),
			"requestId": evt.Key(),
		},
	})
	id, err := r.Get(ctx)
	if err != nil {
		log.Error().Err(err).Str("requestId", evt.Key()).Str("eventType", string(evt.EventType())).Msg("failed to publish event")
		return err
	}
	log.Debug().Str("messageID", id).Str("requestId", evt.Key()).Str("eventType", string(evt.EventType())).Msg("published event")
	return nil
}

var _ events.Publisher = (*Publisher)(nil)
