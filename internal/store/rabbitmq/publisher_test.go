package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/cesar/internal/events"
)

func TestNewPublishing(t *testing.T) {
	msg, err := newPublishing(events.Event{JobID: "01JOB", Type: events.TypeStatus, Status: "completed"})
	if err != nil {
		t.Fatalf("newPublishing: %v", err)
	}
	if msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("message must be persistent")
	}
	if msg.MessageId != "01JOB" || msg.Type != "status" || msg.Timestamp.IsZero() {
		t.Fatalf("unexpected headers: %+v", msg)
	}

	var e events.Event
	if err := json.Unmarshal(msg.Body, &e); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if e.Status != "completed" {
		t.Fatalf("status = %q", e.Status)
	}
}

type recordingChannel struct {
	exchange, key string
	msgs          []amqp.Publishing
	deadline      bool
	closed        bool
}

func (c *recordingChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	_, c.deadline = ctx.Deadline()
	c.exchange, c.key = exchange, key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublishRoutesToQueue(t *testing.T) {
	ch := &recordingChannel{}
	p := &Publisher{ch: ch, queue: "cesar.job_events"}

	err := p.Publish(context.Background(), events.Event{JobID: "01JOB", Type: events.TypeProgress, Phase: "diarizing", Overall: 60})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ch.exchange != "" || ch.key != "cesar.job_events" {
		t.Fatalf("routed to exchange=%q key=%q", ch.exchange, ch.key)
	}
	if !ch.deadline {
		t.Fatalf("publish should be bounded by a timeout")
	}
	if len(ch.msgs) != 1 || ch.msgs[0].MessageId != "01JOB" || ch.msgs[0].Type != "progress" {
		t.Fatalf("unexpected messages: %+v", ch.msgs)
	}

	if err := p.Close(); err != nil || !ch.closed {
		t.Fatalf("close: %v closed=%v", err, ch.closed)
	}
}
