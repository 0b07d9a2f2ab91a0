package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"DexLedger/internal/eventlog"
	"DexLedger/internal/observability"
)

// Subjects follow the pattern dex.events.{kind}, one subject per event kind
// so consumers can filter without decoding.
const (
	eventStreamName    = "DEX_EVENTS"
	eventSubjectPrefix = "dex.events."
)

// OutboundPublisher republishes every appended envelope to NATS for
// out-of-process consumers. Publishing is droppable: a failed publish is
// logged and counted, never blocks the engine, and consumers can always
// resync from the log itself.
type OutboundPublisher struct {
	js      jetstream.JetStream
	log     *eventlog.Log
	metrics *observability.Metrics
}

func NewOutboundPublisher(js jetstream.JetStream, evlog *eventlog.Log, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{js: js, log: evlog, metrics: metrics}
}

// Run subscribes to the log from the given sequence and publishes until ctx
// is cancelled. Blocking; run in its own goroutine.
func (op *OutboundPublisher) Run(ctx context.Context, from uint64) {
	for env := range op.log.Subscribe(ctx, from) {
		data, err := EncodeEnvelope(env)
		if err != nil {
			log.Printf("WARN: encode envelope seq=%d: %v", env.Sequence, err)
			if op.metrics != nil {
				op.metrics.PublishDrops.Inc()
			}
			continue
		}

		subject := eventSubjectPrefix + strings.ToLower(env.Kind.String())
		if _, err := op.js.Publish(ctx, subject, data); err != nil {
			log.Printf("WARN: outbound publish failed seq=%d: %v", env.Sequence, err)
			if op.metrics != nil {
				op.metrics.PublishDrops.Inc()
			}
		}
	}
}

// EnsureEventStream creates the outbound events stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      eventStreamName,
		Subjects:  []string{eventSubjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create event stream: %w", err)
	}
	log.Printf("INFO: ensured stream %s", eventStreamName)
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
