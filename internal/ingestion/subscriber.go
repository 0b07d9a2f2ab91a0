package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"DexLedger/internal/views"
)

// NATSSubscriber feeds published envelopes into a remote projector. This is
// how a read replica keeps derived views without sharing the engine's
// process: delivery is at-least-once, the projector dedups by event key and
// the sequence validator rejects gaps so a stale consumer Naks until
// redelivery restores order.
type NATSSubscriber struct {
	js        jetstream.JetStream
	projector *views.Projector
	seqv      *SequenceValidator
	consumer  jetstream.ConsumeContext
}

func NewNATSSubscriber(js jetstream.JetStream, projector *views.Projector) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		projector: projector,
		seqv:      NewSequenceValidator(),
	}
}

// Subscribe creates a durable JetStream consumer over all event subjects.
// Explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, consumerName string) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, eventStreamName, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: eventSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
		ns.handle(msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	ns.consumer = consumerContext
	log.Printf("INFO: subscribed to %s> (consumer=%s)", eventSubjectPrefix, consumerName)
	return nil
}

func (ns *NATSSubscriber) handle(msg jetstream.Msg) {
	env, err := DecodeEnvelope(msg.Data())
	if err != nil {
		// Malformed payloads never become valid; drop after logging.
		log.Printf("WARN: drop malformed event on %s: %v", msg.Subject(), err)
		msg.Ack()
		return
	}

	duplicate, err := ns.seqv.Validate(env.Sequence)
	if err != nil {
		// Gap ahead of the cursor: Nak so redelivery restores order.
		log.Printf("WARN: %v (subject=%s)", err, msg.Subject())
		msg.Nak()
		return
	}
	if duplicate {
		msg.Ack()
		return
	}

	if err := ns.projector.Apply(env); err != nil {
		log.Printf("WARN: projection apply failed seq=%d: %v", env.Sequence, err)
		// Rewind so the redelivery is not mistaken for a duplicate.
		ns.seqv.SetNext(env.Sequence)
		msg.Nak()
		return
	}
	msg.Ack()
}

// Stop gracefully stops the consumer.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	log.Println("INFO: NATS subscriber stopped")
}
