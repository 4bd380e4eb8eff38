package events

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisRelay mirrors the local bus onto a Redis pub/sub channel so that
// mirrors held by other service instances see writes made here, and
// injects changes published by other instances into the local bus.
type RedisRelay struct {
	client  *redis.Client
	channel string
	bus     *Bus
	log     zerolog.Logger
	send    func(ctx context.Context, payload []byte) error
}

// NewRedisRelay wires a relay between bus and the named Redis channel.
func NewRedisRelay(client *redis.Client, channel string, bus *Bus, log zerolog.Logger) *RedisRelay {
	r := &RedisRelay{client: client, channel: channel, bus: bus, log: log}
	r.send = func(ctx context.Context, payload []byte) error {
		return r.client.Publish(ctx, r.channel, payload).Err()
	}
	return r
}

// HealthPing implements health.HealthPinger.
func (r *RedisRelay) HealthPing(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Run forwards local changes out and remote changes in until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = pubsub.Close() }()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	local := r.subscribeLocal()
	defer local.Close()

	remote := pubsub.Channel()
	r.log.Info().Str("channel", r.channel).Str("origin", r.bus.Origin()).Msg("change relay started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("change relay stopping")
			return ctx.Err()
		case _, ok := <-local.Ready:
			r.flush(ctx, local)
			if !ok {
				return nil
			}
		case msg, ok := <-remote:
			if !ok {
				return nil
			}
			r.inject(msg.Payload)
		}
	}
}

// subscribeLocal listens for changes made on this instance. A queue is used
// because the relay sees every owner and cannot rely on a pending tick.
func (r *RedisRelay) subscribeLocal() *Queue {
	origin := r.bus.Origin()
	return r.bus.SubscribeQueue(func(c Change) bool { return c.Origin == origin })
}

func (r *RedisRelay) flush(ctx context.Context, q *Queue) {
	for _, c := range q.Drain() {
		r.forward(ctx, c)
	}
}

func (r *RedisRelay) forward(ctx context.Context, c Change) {
	payload, err := json.Marshal(c)
	if err != nil {
		r.log.Error().Err(err).Msg("encode change")
		return
	}
	if err := r.send(ctx, payload); err != nil {
		r.log.Warn().Err(err).Str("doc_id", c.DocID).Msg("relay publish failed")
	}
}

func (r *RedisRelay) inject(payload string) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		r.log.Warn().Err(err).Msg("dropping malformed relayed change")
		return
	}
	if c.Origin == r.bus.Origin() {
		return
	}
	r.bus.Publish(c)
}
