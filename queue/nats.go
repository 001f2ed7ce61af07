package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chatbet/metrics"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	subjectPrefix = "chatbet.jobs."
	workerGroup   = "chatbet-workers"
	maxAttempts   = 5
	baseBackoff   = 2 * time.Second
)

// NATSQueue delivers tasks over core NATS subjects with queue-group
// subscribers. Retries are done in-process with exponential backoff by
// republishing the envelope with an incremented attempt counter.
type NATSQueue struct {
	conn     *nats.Conn
	handlers map[string]Handler
	subs     []*nats.Subscription
	log      zerolog.Logger
}

func NewNATSQueue(url string, log zerolog.Logger) (*NATSQueue, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSQueue{
		conn:     conn,
		handlers: make(map[string]Handler),
		log:      log,
	}, nil
}

func (q *NATSQueue) RegisterHandler(taskName string, h Handler) {
	q.handlers[taskName] = h
}

func (q *NATSQueue) Schedule(ctx context.Context, queueName, taskName string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	env := Envelope{Name: taskName, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.conn.Publish(subjectPrefix+queueName, data)
}

// Start subscribes the worker group on both partitions.
func (q *NATSQueue) Start(ctx context.Context) error {
	for _, queueName := range []string{QueueData, QueueNotify} {
		sub, err := q.conn.QueueSubscribe(subjectPrefix+queueName, workerGroup, func(msg *nats.Msg) {
			q.dispatch(ctx, msg)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", queueName, err)
		}
		q.subs = append(q.subs, sub)
	}
	return nil
}

func (q *NATSQueue) dispatch(ctx context.Context, msg *nats.Msg) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		q.log.Error().Err(err).Str("subject", msg.Subject).Msg("undecodable task envelope")
		return
	}

	handler, ok := q.handlers[env.Name]
	if !ok {
		q.log.Error().Str("task", env.Name).Msg("no handler registered for task")
		return
	}

	err := handler(ctx, env.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, ErrPermanent) {
		q.log.Error().Err(err).Str("task", env.Name).Msg("task failed permanently, dropping")
		return
	}

	if env.Attempt+1 >= maxAttempts {
		q.log.Error().Err(err).Str("task", env.Name).Int("attempts", env.Attempt+1).
			Msg("task exhausted retries")
		return
	}

	metrics.JobRetriesTotal.WithLabelValues(env.Name).Inc()
	env.Attempt++
	delay := baseBackoff << (env.Attempt - 1)
	q.log.Warn().Err(err).Str("task", env.Name).Int("attempt", env.Attempt).
		Dur("backoff", delay).Msg("task failed, retrying")

	subject := msg.Subject
	data, _ := json.Marshal(env)
	time.AfterFunc(delay, func() {
		if pubErr := q.conn.Publish(subject, data); pubErr != nil {
			q.log.Error().Err(pubErr).Str("task", env.Name).Msg("retry republish failed")
		}
	})
}

func (q *NATSQueue) Stop() {
	for _, sub := range q.subs {
		_ = sub.Drain()
	}
	q.conn.Close()
}
