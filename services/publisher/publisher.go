package publisher

import (
	"context"
	"encoding/json"

	"sjsage522/hotissueworker/internal/model"
	"sjsage522/hotissueworker/logger"
	apperrors "sjsage522/hotissueworker/pkg/errors"
)

// EventKey is the stream field carrying a base64 encoded ingest event
const EventKey = "b64_post"

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message to the named stream
	Publish(ctx context.Context, stream, key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}

// PublishEvents publishes each event to the stream of its domain and returns
// the number published. It stops at the first failure.
func PublishEvents(ctx context.Context, p Publisher, events []model.IngestEvent) (int, error) {
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return i, apperrors.NewPublisher(string(ev.Domain), "marshal event", err)
		}
		if err := p.Publish(ctx, string(ev.Domain), EventKey, data); err != nil {
			logger.ForPublisher().WithError(err).Warn().
				Str("stream", string(ev.Domain)).
				Int64("seq", ev.Seq).
				Int("remaining", len(events)-i).
				Msg("Event not published")
			return i, apperrors.NewPublisher(string(ev.Domain), "publish event", err)
		}
	}
	if len(events) > 0 {
		logger.ForPublisher().Debug().Int("events", len(events)).Msg("Events published")
	}
	return len(events), nil
}
