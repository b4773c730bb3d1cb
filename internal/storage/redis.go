package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trading-dashboard/internal/config"
	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/types"
)

// SnapshotMessage is the payload published for each committed snapshot
type SnapshotMessage struct {
	Type     string                    `json:"type"`
	Sequence uint64                    `json:"sequence"`
	SentAt   time.Time                 `json:"sentAt"`
	Data     *types.AggregatedSnapshot `json:"data"`
}

// RedisBroadcaster publishes committed snapshots on a Redis pub/sub channel
// so other dashboard replicas can follow without polling the backend.
// Nothing is written to the keyspace.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
	timeout time.Duration
	logger  *logging.Logger
}

// NewRedisBroadcaster connects to Redis and verifies the connection
func NewRedisBroadcaster(cfg *config.RedisConfig, logger *logging.Logger) (*RedisBroadcaster, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisBroadcasterWithClient(client, cfg.Channel, logger), nil
}

// NewRedisBroadcasterWithClient wraps an existing client
func NewRedisBroadcasterWithClient(client *redis.Client, channel string, logger *logging.Logger) *RedisBroadcaster {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RedisBroadcaster{
		client:  client,
		channel: channel,
		timeout: 3 * time.Second,
		logger:  logger.WithComponent("redis_broadcaster").WithField("channel", channel),
	}
}

// Channel returns the pub/sub channel name
func (b *RedisBroadcaster) Channel() string {
	return b.channel
}

// Broadcast publishes one snapshot and returns the number of receivers
func (b *RedisBroadcaster) Broadcast(ctx context.Context, snapshot *types.AggregatedSnapshot) (int64, error) {
	payload, err := json.Marshal(SnapshotMessage{
		Type:     "snapshot_update",
		Sequence: snapshot.Sequence,
		SentAt:   time.Now().UTC(),
		Data:     snapshot,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode snapshot %d: %w", snapshot.Sequence, err)
	}

	receivers, err := b.client.Publish(ctx, b.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish snapshot %d: %w", snapshot.Sequence, err)
	}
	return receivers, nil
}

// Run forwards every snapshot committed to store until ctx is done or the
// store is closed. Failure-only states are not broadcast. Publish errors are logged and do not stop the loop.
func (b *RedisBroadcaster) Run(ctx context.Context, store *SnapshotStore) {
	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	b.logger.Info("Redis broadcaster started")
	defer b.logger.Info("Redis broadcaster stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			snapshot := state.Snapshot
			if snapshot == nil {
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, b.timeout)
			receivers, err := b.Broadcast(pubCtx, snapshot)
			cancel()
			if err != nil {
				b.logger.WithError(err).Warn("Snapshot broadcast failed")
				continue
			}
			b.logger.WithFields(map[string]interface{}{
				"sequence":  snapshot.Sequence,
				"receivers": receivers,
			}).Debug("Snapshot broadcast")
		}
	}
}

// Ping checks if Redis is reachable
func (b *RedisBroadcaster) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (b *RedisBroadcaster) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
