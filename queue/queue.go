package queue

import (
	"context"
	"encoding/json"
	"errors"
)

// Queue partitions keep bulk data-refresh work away from latency-sensitive
// notification sends.
const (
	QueueData   = "data"
	QueueNotify = "notify"
)

// ErrPermanent wraps validation or business-rule failures that must not be
// retried. Everything else is treated as transient and retried with backoff.
var ErrPermanent = errors.New("permanent task failure")

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrPermanent, err)
}

// Envelope is the wire form of one scheduled unit of work.
type Envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

type Handler func(ctx context.Context, payload []byte) error

// Queue schedules named units of work with at-least-once delivery.
type Queue interface {
	Schedule(ctx context.Context, queueName, taskName string, payload any) error
	RegisterHandler(taskName string, h Handler)
	Start(ctx context.Context) error
	Stop()
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
