package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"travel-matching-engine/events"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// errDrop marks a message that can never be processed, so redelivering it
// would only loop. The subscriber acks such messages away.
var errDrop = errors.New("dropping message")

type Subscriber struct {
	projectID        string
	subscriptionName string
	credsFile        string
	client           *gpubsub.Client
	sub              *gpubsub.Subscription
}

func NewSubscriber(projectID, subscriptionName, credsFile string) *Subscriber {
	return &Subscriber{projectID: projectID, subscriptionName: subscriptionName, credsFile: credsFile}
}

func (s *Subscriber) Start(ctx context.Context, h events.Handler) error {
	if s.client == nil {
		var (
			client *gpubsub.Client
			err    error
		)
		if s.credsFile != "" {
			log.Debug().Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Str("credsFile", s.credsFile).Msg("initializing pubsub subscriber with explicit credentials")
			client, err = gpubsub.NewClient(ctx, s.projectID, option.WithCredentialsFile(s.credsFile))
		} else {
			log.Debug().Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Msg("initializing pubsub subscriber with default credentials")
			client, err = gpubsub.NewClient(ctx, s.projectID)
		}
		if err != nil {
			log.Error().Err(err).Str("projectID", s.projectID).Str("subscription", s.subscriptionName).Msg("failed to create pubsub client for subscriber")
			return err
		}
		s.client = client
		s.sub = client.Subscription(s.subscriptionName)
		log.Info().Str("subscription", s.subscriptionName).Msg("pubsub subscriber initialized")
	}

	// Receive blocks; it will create goroutines internally; respect ctx cancellation
	return s.sub.Receive(ctx, func(ctx context.Context, m *gpubsub.Message) {
		log.Debug().Str("messageID", m.ID).Int("size", len(m.Data)).Msg("received pubsub message")
		recvAt := time.Now()

		var env events.Envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			log.Error().Err(err).Str("messageID", m.ID).Msg("failed to unmarshal event envelope")
			// Ack to drop bad message (poison)
			m.Ack()
			return
		}
		if err := dispatch(ctx, h, &env); err != nil {
			if errors.Is(err, errDrop) || permanent(err) {
				log.Error().Err(err).Str("messageID", m.ID).Str("type", string(env.Type)).Msg("event rejected permanently; acking")
				m.Ack()
				return
			}
			log.Error().Err(err).Str("messageID", m.ID).Str("type", string(env.Type)).Msg("handler failed; will retry")
			m.Nack()
			return
		}
		log.Debug().Str("type", string(env.Type)).Dur("latency", time.Since(recvAt)).Msg("handler succeeded; acking message")
		m.Ack()
	})
}

// dispatch decodes the envelope payload and routes it to the handler method
// for its type.
func dispatch(ctx context.Context, h events.Handler, env *events.Envelope) error {
	if env.EnvelopeVersion != "" && !strings.HasPrefix(env.EnvelopeVersion, "1.") {
		return fmt.Errorf("%w: unsupported envelope version %q", errDrop, env.EnvelopeVersion)
	}

	switch env.Type {
	case events.TypeRequestCreated:
		var evt events.RequestCreated
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("%w: bad %s payload: %v", errDrop, env.Type, err)
		}
		if evt.RequestID == "" {
			return fmt.Errorf("%w: %s without requestId", errDrop, env.Type)
		}
		return h.HandleRequestCreated(ctx, &evt)

	case events.TypeAgentResponded:
		var evt events.AgentResponded
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("%w: bad %s payload: %v", errDrop, env.Type, err)
		}
		if evt.RequestID == "" || evt.MatchID == "" {
			return fmt.Errorf("%w: %s without requestId or matchId", errDrop, env.Type)
		}
		return h.HandleAgentResponded(ctx, &evt)

	case events.TypeAdminOverrideRequested:
		var evt events.AdminOverrideRequested
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("%w: bad %s payload: %v", errDrop, env.Type, err)
		}
		if evt.RequestID == "" {
			return fmt.Errorf("%w: %s without requestId", errDrop, env.Type)
		}
		return h.HandleAdminOverride(ctx, &evt)

	case events.TypeMatchingTimeoutExpired:
		var evt events.MatchingTimeoutExpired
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("%w: bad %s payload: %v", errDrop, env.Type, err)
		}
		if evt.RequestID == "" || evt.MatchID == "" {
			return fmt.Errorf("%w: %s without requestId or matchId", errDrop, env.Type)
		}
		return h.HandleMatchingTimeout(ctx, &evt)

	default:
		return fmt.Errorf("%w: unknown event type %q", errDrop, env.Type)
	}
}

// permanent reports whether the handler marked the error as one redelivery
// can never fix, such as a failed validation.
func permanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

var _ events.Subscriber = (*Subscriber)(nil)
