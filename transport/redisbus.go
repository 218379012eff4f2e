// Package transport carries encoded transactions between peers. The
// engine core never imports it: spec-wise, any specific transport is an
// external collaborator, and this package is the one concrete
// implementation this module ships — redis pub/sub with one channel per
// domain.
package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/evalgo-forge/ecsreplica/ecscomponent"
	"github.com/evalgo-forge/ecsreplica/ecsentity"
	"github.com/evalgo-forge/ecsreplica/enginelog"
	"github.com/evalgo-forge/ecsreplica/netproto"
	"github.com/evalgo-forge/ecsreplica/replop"
	"github.com/evalgo-forge/ecsreplica/wire"
)

// TransactionBus publishes this peer's transactions and delivers other
// domains' transactions as they arrive.
type TransactionBus interface {
	Publish(ctx context.Context, tx replop.Transaction) error
	Subscribe(ctx context.Context, domains []ecsentity.DomainID) (<-chan replop.Transaction, error)
	Close() error
}

// Config configures the redis transaction bus.
type Config struct {
	RedisURL   string // defaults to redis://localhost:6379/0
	KeyPrefix  string // channel prefix, defaults to "ecs:tx:"
	BufferSize int    // subscription channel depth, defaults to 64
}

// RedisTransactionBus is the go-redis pub/sub implementation of
// TransactionBus. Each domain publishes on its own channel; a peer
// subscribes to every domain it wants to track.
type RedisTransactionBus struct {
	client  *redis.Client
	reg     *ecscomponent.Registry
	prefix  string
	bufSize int
	log     *enginelog.ContextLogger
}

// NewRedisTransactionBus connects to redis and verifies the connection.
// The component registry is needed to serde-encode op payloads on the
// wire.
func NewRedisTransactionBus(ctx context.Context, reg *ecscomponent.Registry, cfg Config) (*RedisTransactionBus, error) {
	redisURL := cfg.RedisURL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ecs:tx:"
	}
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	return &RedisTransactionBus{
		client:  client,
		reg:     reg,
		prefix:  prefix,
		bufSize: bufSize,
		log:     enginelog.NewContextLogger(nil, map[string]interface{}{"bus": "redis"}),
	}, nil
}

// Close closes the redis connection.
func (b *RedisTransactionBus) Close() error {
	return b.client.Close()
}

func (b *RedisTransactionBus) channel(domain ecsentity.DomainID) string {
	return fmt.Sprintf("%s%d", b.prefix, domain)
}

// Publish encodes tx with the wire codec and publishes it on the sending
// domain's channel.
func (b *RedisTransactionBus) Publish(ctx context.Context, tx replop.Transaction) error {
	w := wire.AcquireWriter()
	defer wire.ReleaseWriter(w)
	if err := netproto.EncodeTransaction(w, b.reg, tx); err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	payload := append([]byte(nil), w.Bytes()...)
	if err := b.client.Publish(ctx, b.channel(tx.DomainID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish transaction: %w", err)
	}
	return nil
}

// Subscribe listens on every given domain's channel and decodes each
// frame into a Transaction. Corrupt frames are logged and dropped, never
// delivered; the channel closes when ctx is cancelled or the bus closes.
func (b *RedisTransactionBus) Subscribe(ctx context.Context, domains []ecsentity.DomainID) (<-chan replop.Transaction, error) {
	channels := make([]string, 0, len(domains))
	for _, d := range domains {
		channels = append(channels, b.channel(d))
	}
	sub := b.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan replop.Transaction, b.bufSize)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				tx, err := b.decode([]byte(msg.Payload))
				if err != nil {
					b.log.WithError(err).Warn("dropping corrupt transaction frame")
					continue
				}
				select {
				case out <- tx:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisTransactionBus) decode(frame []byte) (replop.Transaction, error) {
	r := wire.NewReader(frame)
	header, err := netproto.DecodeHeader(r)
	if err != nil {
		return replop.Transaction{}, err
	}
	if header.Type != netproto.TypeTransaction {
		return replop.Transaction{}, fmt.Errorf("unexpected message type %d on transaction channel", header.Type)
	}
	return netproto.DecodeTransactionBody(r, b.reg, uint64(header.Tick))
}
