package events

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// HTTPWriter delivers events in binary mode to a CloudEvents HTTP sink.
type HTTPWriter struct {
	client cloudevents.Client
}

func NewHTTPWriter(target string) (*HTTPWriter, error) {
	c, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client for %s: %w", target, err)
	}
	return &HTTPWriter{client: c}, nil
}

func (h *HTTPWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	e.SetExtension("topic", topic)
	if result := h.client.Send(ctx, e); !cloudevents.IsACK(result) {
		return fmt.Errorf("event %s not delivered: %w", e.ID(), result)
	}
	return nil
}

func (h *HTTPWriter) Close(_ context.Context) error {
	return nil
}
