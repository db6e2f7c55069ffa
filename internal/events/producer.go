package events

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTopic  string = "marketplace.events"
	defaultSource string = "marketplace.api"
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer is a wrapper around a Writer with the buffer.
// Callers never wait for the writer: messages are queued and sent in order by a single goroutine.
type EventProducer struct {
	buffer    *buffer
	notifyCh  chan struct{}
	doneCh    chan struct{}
	stoppedCh chan struct{}
	closeOnce sync.Once
	writer    Writer
	topic     string
	source    string
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		buffer:    newBuffer(),
		notifyCh:  make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		writer:    w,
		topic:     defaultTopic,
		source:    defaultSource,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

func (ep *EventProducer) Write(ctx context.Context, kind string, body io.Reader) error {
	d, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	ep.buffer.PushBack(&message{Kind: kind, Data: d})

	select {
	case ep.notifyCh <- struct{}{}:
	default:
	}

	return nil
}

// Publish encodes payload as json and queues it. A nil producer drops the event.
func (ep *EventProducer) Publish(ctx context.Context, kind string, payload any) error {
	if ep == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ep.Write(ctx, kind, bytes.NewReader(data))
}

// Close sends what is still queued and closes the writer.
func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ep.closeOnce.Do(func() { close(ep.doneCh) })

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		select {
		case <-ep.stoppedCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		zap.S().Named("event_producer").Errorw("event producer closed with error", "error", err)
		return err
	}

	zap.S().Named("event_producer").Info("event producer closed")

	return nil
}

func (ep *EventProducer) run() {
	defer close(ep.stoppedCh)
	for {
		select {
		case <-ep.notifyCh:
			ep.drain()
		case <-ep.doneCh:
			ep.drain()
			return
		}
	}
}

func (ep *EventProducer) drain() {
	for msg := ep.buffer.Pop(); msg != nil; msg = ep.buffer.Pop() {
		e := cloudevents.NewEvent()
		e.SetID(uuid.NewString())
		e.SetSource(ep.source)
		e.SetType(msg.Kind)
		e.SetTime(time.Now())
		_ = e.SetData(cloudevents.ApplicationJSON, msg.Data)

		if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
			zap.S().Named("event_producer").Errorw("failed to send event", "error", err, "type", msg.Kind, "id", e.ID())
		}
	}
}
